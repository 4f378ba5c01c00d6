package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServe(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"error":"short and stout: ` + r.Method + `"}`))
	})
	w := Serve(t, h, http.MethodPut, "/pot", "tea")
	AssertJSONError(t, w, http.StatusTeapot, "stout: PUT")
}

func TestPtr(t *testing.T) {
	p := Ptr(3)
	assert.Equal(t, 3, *p)
	*p = 4
	assert.NotSame(t, p, Ptr(4))
}
