// Package earthengine implements imagery.Service with the REST API of Google Earth Engine.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/log"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

// DefaultEndpoint of the REST API
const DefaultEndpoint = "https://earthengine.googleapis.com/v1"

const (
	scope         = "https://www.googleapis.com/auth/earthengine"
	publicProject = "earthengine-public"
	pageSize      = 100
)

// Only dual-polarisation GRD acquired in interferometric wide swath mode are exported
var radarIndexRegexp = regexp.MustCompile(`^S1[A-D]_IW_GRDH_1SDV_`)

// Destination of the exports
type Destination struct {
	// Bucket is the GCS bucket of the exports. If empty, exports are written in Google Drive
	Bucket string
	// Prefix of the objects in the bucket
	Prefix string
}

// Client of the remote service
type Client struct {
	endpoint    string
	project     string
	destination Destination
	client      *http.Client
	retry       service.RetryPolicy
}

// New creates a client authenticated with the default credentials of the environment
func New(ctx context.Context, endpoint, project string, destination Destination) (*Client, error) {
	client, err := google.DefaultClient(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("earthengine.New: %w", err)
	}
	return NewWithClient(client, endpoint, project, destination), nil
}

// NewWithClient creates a client using an authenticated http client
func NewWithClient(client *http.Client, endpoint, project string, destination Destination) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		project:     project,
		destination: destination,
		client:      client,
		retry:       service.DefaultRetryPolicy,
	}
}

// WithRetryPolicy sets the policy of the retries of the transient errors
func (c *Client) WithRetryPolicy(p service.RetryPolicy) *Client {
	c.retry = p
	return c
}

type listImagesResponse struct {
	Images []struct {
		ID        string          `json:"id"`
		StartTime time.Time       `json:"startTime"`
		EndTime   time.Time       `json:"endTime"`
		Geometry  json.RawMessage `json:"geometry"`
	} `json:"images"`
	NextPageToken string `json:"nextPageToken"`
}

// Search implements imagery.Service
func (c *Client) Search(ctx context.Context, collection imagery.Collection, region common.BBox, dates common.DateRange) ([]imagery.Image, error) {
	regionJSON, err := json.Marshal(map[string]interface{}{
		"type":        "Polygon",
		"coordinates": [][][2]float64{{{region.West, region.South}, {region.East, region.South}, {region.East, region.North}, {region.West, region.North}, {region.West, region.South}}},
	})
	if err != nil {
		return nil, fmt.Errorf("Search.Marshal: %w", err)
	}
	params := url.Values{}
	params.Set("startTime", dates.Start.UTC().Format(time.RFC3339))
	params.Set("endTime", dates.End.UTC().Format(time.RFC3339))
	params.Set("region", string(regionJSON))
	params.Set("pageSize", fmt.Sprint(pageSize))

	var images []imagery.Image
	for {
		requestURL := fmt.Sprintf("%s/projects/%s/assets/%s:listImages?%s", c.endpoint, publicProject, collection, params.Encode())
		var resp listImagesResponse
		if err := c.do(ctx, http.MethodGet, requestURL, nil, &resp); err != nil {
			return nil, fmt.Errorf("Search[%s].%w", collection, err)
		}
		for _, img := range resp.Images {
			index := path.Base(img.ID)
			if collection == imagery.CollectionRadar && !radarIndexRegexp.MatchString(index) {
				continue
			}
			images = append(images, imagery.Image{Collection: collection, Index: index, Start: img.StartTime, End: img.EndTime,
				Footprint: footprint(img.Geometry, region)})
		}
		if resp.NextPageToken == "" {
			break
		}
		params.Set("pageToken", resp.NextPageToken)
	}
	log.Logger(ctx).Sugar().Debugf("%d images found in %s (%s)", len(images), collection, dates)
	return images, nil
}

// footprint returns the extent of the GeoJSON geometry of an image, or the searched region when it has none
func footprint(geometry json.RawMessage, region common.BBox) common.BBox {
	if len(geometry) == 0 {
		return region
	}
	var g geojson.Geometry
	if err := json.Unmarshal(geometry, &g); err != nil || g.Geometry == nil {
		return region
	}
	ext, err := geom.NewExtentFromGeometry(g.Geometry)
	if err != nil {
		return region
	}
	return common.BBox{West: ext.MinX(), South: ext.MinY(), East: ext.MaxX(), North: ext.MaxY()}
}

type exportRequest struct {
	Expression        Expression        `json:"expression"`
	Description       string            `json:"description"`
	FileExportOptions fileExportOptions `json:"fileExportOptions"`
	MaxPixels         string            `json:"maxPixels"`
	RequestID         string            `json:"requestId,omitempty"`
}

type fileExportOptions struct {
	FileFormat              string       `json:"fileFormat"`
	DriveDestination        *destination `json:"driveDestination,omitempty"`
	CloudStorageDestination *destination `json:"cloudStorageDestination,omitempty"`
}

type destination struct {
	Folder         string `json:"folder,omitempty"`
	Bucket         string `json:"bucket,omitempty"`
	FilenamePrefix string `json:"filenamePrefix"`
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		State       string `json:"state"`
		Description string `json:"description"`
	} `json:"metadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Export implements imagery.Service
func (c *Client) Export(ctx context.Context, req imagery.ExportRequest) (string, error) {
	var expr Expression
	switch req.Kind {
	case common.KindS2, common.KindS1:
		if req.Image == nil {
			return "", fmt.Errorf("Export[%s]: no image", req.Name)
		}
		bands := imagery.OpticalBands
		if req.Kind == common.KindS1 {
			bands = imagery.RadarBands
		}
		expr = ImageExpression(*req.Image, bands, req.Region)
	case common.KindJRC:
		if req.Window == nil {
			return "", fmt.Errorf("Export[%s]: no window", req.Name)
		}
		var err error
		if expr, err = WaterHistoryExpression(*req.Window, req.Region); err != nil {
			return "", fmt.Errorf("Export[%s].%w", req.Name, err)
		}
	default:
		return "", fmt.Errorf("Export[%s]: %s cannot be exported", req.Name, req.Kind)
	}

	name := common.TruncateJobName(req.Name)
	body := exportRequest{
		Expression:        expr,
		Description:       name,
		FileExportOptions: fileExportOptions{FileFormat: "GEO_TIFF"},
		MaxPixels:         "1e13",
	}
	if c.destination.Bucket == "" {
		body.FileExportOptions.DriveDestination = &destination{Folder: req.Folder, FilenamePrefix: req.Name}
	} else {
		body.FileExportOptions.CloudStorageDestination = &destination{
			Bucket:         c.destination.Bucket,
			FilenamePrefix: path.Join(c.destination.Prefix, req.Folder, req.Name),
		}
	}

	var op operation
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/projects/%s/image:export", c.endpoint, c.project), body, &op); err != nil {
		return "", fmt.Errorf("Export[%s].%w", req.Name, err)
	}
	if op.Name == "" {
		return "", fmt.Errorf("Export[%s]: no operation returned", req.Name)
	}
	return op.Name, nil
}

// Status implements imagery.Service
func (c *Client) Status(ctx context.Context, handle string) (common.TaskState, string, error) {
	var op operation
	if err := c.do(ctx, http.MethodGet, c.endpoint+"/"+handle, nil, &op); err != nil {
		return common.TaskQueued, "", fmt.Errorf("Status[%s].%w", handle, err)
	}
	if op.Error != nil {
		return common.TaskFailed, op.Error.Message, nil
	}
	switch op.Metadata.State {
	case "PENDING", "":
		if op.Done {
			return common.TaskCompleted, "", nil
		}
		return common.TaskQueued, "", nil
	case "RUNNING", "CANCELLING":
		return common.TaskRunning, "", nil
	case "SUCCEEDED":
		return common.TaskCompleted, "", nil
	case "CANCELLED":
		return common.TaskFailed, "cancelled", nil
	case "FAILED":
		return common.TaskFailed, "failed", nil
	}
	return common.TaskQueued, "", fmt.Errorf("Status[%s]: unknown state %s", handle, op.Metadata.State)
}

// do sends the request and decodes the response into out. Transient errors are retried.
func (c *Client) do(ctx context.Context, method, requestURL string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("do: failed to marshal body request: %w", err)
		}
	}
	return c.retry.Do(ctx, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		request, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
		if err != nil {
			return fmt.Errorf("do: failed to create http request: %w", err)
		}
		if payload != nil {
			request.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.client.Do(request)
		if err != nil {
			return service.MakeTemporary(fmt.Errorf("do: failed to execute http request: %w", err))
		}
		defer resp.Body.Close()
		if err := googleapi.CheckResponse(resp); err != nil {
			return fmt.Errorf("do: %w", err)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("do: failed to decode response: %w", err)
		}
		return nil
	})
}
