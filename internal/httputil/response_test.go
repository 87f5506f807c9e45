package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/peerprep/matching-server-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{"match not found", apperrors.MatchNotFound(), http.StatusNotFound, apperrors.ErrCodeMatchNotFound},
		{"request exists", apperrors.RequestExists(), http.StatusConflict, apperrors.ErrCodeRequestExists},
		{"missing field", apperrors.MissingRequired("userId"), http.StatusBadRequest, apperrors.ErrCodeMissingRequired},
		{"enqueue failure", apperrors.EnqueueFailed(errors.New("down")), http.StatusBadGateway, apperrors.ErrCodeEnqueueFailed},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}
