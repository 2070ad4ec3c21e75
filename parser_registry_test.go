package precognition

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalRegistry(t *testing.T) {
	t.Cleanup(ResetRegistry)

	t.Run("ClientParsersRunBeforeFormParsers", func(t *testing.T) {
		ResetRegistry()
		RegisterErrorParser(constantParser("global"))
		RegisterErrorParser(nil)

		transport := func(context.Context, Data, http.Header) (*Response, error) {
			return nil, errors.New("boom")
		}
		form, err := NewForm(Data{"name": ""}, transport, FormOpts{
			ErrorParsers: []ErrorParser{constantParser("form")},
		})
		require.NoError(t, err)

		data, ok := form.parsers.Resolve(errors.New("boom"))
		require.True(t, ok)
		assert.Equal(t, "global", data.Message)
		assert.Equal(t, 3, form.parsers.Len(), "global, per-form, validation error fallback")
	})

	t.Run("SnapshotAtConstruction", func(t *testing.T) {
		ResetRegistry()

		srv, err := NewServer(ServerOpts{})
		require.NoError(t, err)

		RegisterServerErrorParser(constantParser("late"))
		assert.Equal(t, 0, srv.parsers.Len(), "later registrations must not reach existing servers")

		srv, err = NewServer(ServerOpts{})
		require.NoError(t, err)
		assert.Equal(t, 1, srv.parsers.Len())
	})

	t.Run("StatusHandlers", func(t *testing.T) {
		ResetRegistry()

		require.NoError(t, RegisterStatusHandler(401, func(error, *Form) {}))
		require.NoError(t, RegisterServerStatusHandler(403, func(http.ResponseWriter, *http.Request, error) {}))

		assert.ErrorIs(t, RegisterStatusHandler(99, func(error, *Form) {}), ErrInvalidStatusCode)
		assert.ErrorIs(t, RegisterStatusHandler(401, nil), ErrNilStatusHandler)
		assert.ErrorIs(t, RegisterServerStatusHandler(600, func(http.ResponseWriter, *http.Request, error) {}), ErrInvalidStatusCode)

		parsers, client := _gRegistry.snapshotClient()
		assert.Empty(t, parsers)
		assert.Contains(t, client, 401)

		_, server := _gRegistry.snapshotServer()
		assert.Contains(t, server, 403)
	})

	t.Run("Reset", func(t *testing.T) {
		RegisterErrorParser(constantParser("x"))
		ResetRegistry()

		parsers, handlers := _gRegistry.snapshotClient()
		assert.Empty(t, parsers)
		assert.Empty(t, handlers)
	})
}
