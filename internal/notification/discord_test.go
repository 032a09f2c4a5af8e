package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordSendsEmbeds(t *testing.T) {
	var got []DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg DiscordMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got = append(got, msg)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := properties.DefaultConfig()
	cfg.Notification.DiscordErrorURL = server.URL
	cfg.Notification.DiscordSuccessURL = server.URL
	d := NewDiscord(cfg)

	require.NoError(t, d.SendError(context.Background(), "boom"))
	require.NoError(t, d.SendSuccess(context.Background(), "ndvi.tif written"))

	require.Len(t, got, 2)
	assert.Equal(t, colorRed, got[0].Embeds[0].Color)
	assert.Contains(t, got[0].Embeds[0].Description, "boom")
	assert.Equal(t, colorGreen, got[1].Embeds[0].Color)
	assert.Equal(t, "ndvi.tif written", got[1].Embeds[0].Description)
}

func TestDiscordReportsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := &Discord{ErrorURL: server.URL}
	assert.Error(t, d.SendError(context.Background(), "boom"))
}

func TestDiscordDisabledWithoutURL(t *testing.T) {
	d := NewDiscord(properties.DefaultConfig())
	assert.NoError(t, d.SendError(context.Background(), "boom"))
	assert.NoError(t, d.SendSuccess(context.Background(), "ok"))
}
