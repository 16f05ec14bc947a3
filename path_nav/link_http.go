package path_nav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	lokarriaLocalization = "/lokarria/localization"
	lokarriaDrive        = "/lokarria/differentialdrive"
)

// localizationResponse is the body of GET /lokarria/localization.
type localizationResponse struct {
	Pose      lokarriaPose `json:"Pose"`
	Status    int          `json:"Status"`
	Timestamp int64        `json:"Timestamp"`
}

// differentialDriveRequest is the body of POST /lokarria/differentialdrive.
type differentialDriveRequest struct {
	TargetAngularSpeed float64 `json:"TargetAngularSpeed"`
	TargetLinearSpeed  float64 `json:"TargetLinearSpeed"`
}

// HTTPLink talks to a Lokarria-compatible robot server over HTTP.
type HTTPLink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLink creates a link for baseURL, e.g. http://127.0.0.1:50000.
// A nil client uses a dedicated client with keep-alives.
func NewHTTPLink(baseURL string, client *http.Client) (*HTTPLink, error) {
	if baseURL == "" {
		return nil, &ConfigError{Field: "link.http.base_url", Reason: "must be set"}
	}
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		}}
	}
	return &HTTPLink{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

// GetPose fetches the current localization.
func (l *HTTPLink) GetPose(ctx context.Context) (Pose, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+lokarriaLocalization, nil)
	if err != nil {
		return Pose{}, &LinkError{Kind: LinkProtocol, Op: "get_pose", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	body, err := l.do(req)
	if err != nil {
		return Pose{}, ClassifyLinkError("get_pose", err)
	}
	var lr localizationResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return Pose{}, &LinkError{Kind: LinkProtocol, Op: "get_pose", Err: fmt.Errorf("decode localization: %w", err)}
	}
	pos := lr.Pose.Position
	if pos.X == nil || pos.Y == nil {
		return Pose{}, &LinkError{Kind: LinkProtocol, Op: "get_pose", Err: fmt.Errorf("localization without position")}
	}
	return Pose{X: *pos.X, Y: *pos.Y, Heading: NormalizeAngle(lr.Pose.Orientation.yaw())}, nil
}

// SendDrive posts a differential drive request.
func (l *HTTPLink) SendDrive(ctx context.Context, cmd DriveCommand) error {
	payload, err := json.Marshal(differentialDriveRequest{
		TargetAngularSpeed: cmd.AngularSpeed,
		TargetLinearSpeed:  cmd.LinearSpeed,
	})
	if err != nil {
		return &LinkError{Kind: LinkProtocol, Op: "send_drive", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+lokarriaDrive, bytes.NewReader(payload))
	if err != nil {
		return &LinkError{Kind: LinkProtocol, Op: "send_drive", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := l.do(req); err != nil {
		return ClassifyLinkError("send_drive", err)
	}
	return nil
}

func (l *HTTPLink) do(req *http.Request) ([]byte, error) {
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &LinkError{Kind: LinkProtocol, Op: req.Method + " " + req.URL.Path,
			Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return body, nil
}
