package mw

import (
	"net/http"

	apperr "github.com/emoradar/emoradar/internal/errors"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
)

func writeForbidden(w http.ResponseWriter, msg string) {
	respond.Error(w, apperr.Forbidden(msg), nil)
}
