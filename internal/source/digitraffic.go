package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"fleet-monitor/speedwatch/internal/config"
	"fleet-monitor/speedwatch/internal/domain"
)

// maxResponseBytes caps a locations payload; a single vessel is a few hundred bytes.
const maxResponseBytes = 4 << 20

// Digitraffic fetches live AIS locations from the Finnish Digitraffic marine API.
type Digitraffic struct {
	client       *http.Client
	locationsURL string
	user         string
}

func NewDigitraffic(cfg *config.Config) *Digitraffic {
	return &Digitraffic{
		client:       &http.Client{},
		locationsURL: strings.TrimRight(cfg.DigitrafficLocationsURL, "/"),
		user:         cfg.DigitrafficUser,
	}
}

// Fetch returns the latest reading for an MMSI. The caller bounds it with ctx.
func (d *Digitraffic) Fetch(ctx context.Context, mmsi string) (domain.VesselReading, error) {
	endpoint := d.locationsURL + "/" + url.PathEscape(mmsi)

	payload, err := d.fetchJSON(ctx, endpoint)
	if err != nil {
		return domain.VesselReading{}, &domain.FetchError{ID: mmsi, Err: err}
	}

	reading, err := ParseLocation(payload, mmsi)
	if err != nil {
		return domain.VesselReading{}, &domain.FetchError{ID: mmsi, Err: err}
	}
	return reading, nil
}

func (d *Digitraffic) fetchJSON(ctx context.Context, endpoint string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if d.user != "" {
		req.Header.Set("Digitraffic-User", d.user)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewTimeoutError("fetch", "", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return payload, nil
}
