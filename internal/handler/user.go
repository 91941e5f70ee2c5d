package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/order-desk/internal/auth"
	"github.com/xenking/order-desk/internal/domain/user"
)

func writeUser(w http.ResponseWriter, status int, u *user.User) {
	var e jx.Encoder
	encodeUser(&e, u)
	writeJSON(w, status, &e)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req user.RegisterRequest
	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			req.Email, err = decodeString(d, key)
		case "password":
			req.Password, err = decodeString(d, key)
		case "name":
			req.Name, err = decodeOptionalString(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeUser(w, http.StatusCreated, u)
}

// issueToken exchanges credentials for an access/refresh token pair.
func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var email, password string
	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = decodeString(d, key)
		case "password":
			password, err = decodeString(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if email == "" || password == "" {
		fail(w, r, badRequest("email and password are required"))
		return
	}

	u, err := h.users.Authenticate(r.Context(), email, password)
	if err != nil {
		fail(w, r, err)
		return
	}
	pair, err := h.tokens.Issue(auth.Subject{UserID: u.ID, Email: u.Email})
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("access")
	e.Str(pair.Access)
	e.FieldStart("refresh")
	e.Str(pair.Refresh)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var refresh string
	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "refresh" {
			return d.Skip()
		}
		var err error
		refresh, err = decodeString(d, key)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if refresh == "" {
		fail(w, r, badRequest("refresh is required"))
		return
	}

	access, err := h.tokens.Refresh(refresh)
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("access")
	e.Str(access)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	sub, _ := subjectFrom(r.Context())
	u, err := h.users.Get(r.Context(), sub.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeUser(w, http.StatusOK, u)
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	sub, _ := subjectFrom(r.Context())
	data, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var patch user.Patch
	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "name", "password":
			v, err := decodeString(d, key)
			if err != nil {
				return err
			}
			if key == "name" {
				patch.Name = &v
			} else {
				patch.Password = &v
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.users.Update(r.Context(), sub.UserID, patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeUser(w, http.StatusOK, u)
}
