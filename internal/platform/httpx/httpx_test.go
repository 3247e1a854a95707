package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{fmt.Errorf("%w: bill 3", ErrNotFound), http.StatusNotFound, "resource not found: bill 3"},
		{fmt.Errorf("%w: 0:0:1", ErrConflict), http.StatusConflict, "conflict: 0:0:1"},
		{ErrValidation, http.StatusBadRequest, "validation failed"},
		{fmt.Errorf("pool closed"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code)
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		assert.Equal(t, tc.status, problem.Status)
		assert.Equal(t, tc.detail, problem.Detail)
	}
}
