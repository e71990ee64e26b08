package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	t.Run("valid json", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"test","age":30}`))
		var target struct {
			Name string `json:"name"`
			Age  int    `json:"age"`
		}
		require.NoError(t, DecodeJSON(req, &target))
		assert.Equal(t, "test", target.Name)
		assert.Equal(t, 30, target.Age)
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		var target struct{}
		assert.Error(t, DecodeJSON(req, &target))
	})

	t.Run("oversized body", func(t *testing.T) {
		t.Parallel()
		body := `{"name":"` + strings.Repeat("a", MaxRequestBody) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var target struct {
			Name string `json:"name"`
		}
		assert.Error(t, DecodeJSON(req, &target))
	})
}

func TestValidTaskID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want bool
	}{
		{"task-001", true},
		{"abc_DEF.1", true},
		{"_leading", true},
		{"", false},
		{".hidden", false},
		{"a/b", false},
		{`a\b`, false},
		{"a..b", false},
		{"has space", false},
		{"quote'", false},
		{strings.Repeat("x", 128), true},
		{strings.Repeat("x", 129), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidTaskID(tt.id), "id %q", tt.id)
	}
}

type selfValidating struct {
	Name string `validate:"required"`
}

func (s *selfValidating) Validate() error {
	if s.Name == "invalid" {
		return errors.New("name is reserved")
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     any
		wantErr bool
	}{
		{"tags pass and Validate passes", &selfValidating{Name: "ok"}, false},
		{"tags fail", &selfValidating{}, true},
		{"Validate fails", &selfValidating{Name: "invalid"}, true},
		{"taskid tag", &struct {
			ID string `validate:"required,taskid"`
		}{ID: "../etc"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRequest(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
