package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/helioscope/platform/pkg/common/httpclient"
	"github.com/helioscope/platform/pkg/common/logger"
	"github.com/helioscope/platform/pkg/common/models"
	"github.com/helioscope/platform/pkg/observability/metrics"
)

// readyMarker appears on the per-job status page once the provider has
// finished generating the cutout files.
const readyMarker = "Per-Wave file lists"

var (
	jobIDPattern       = regexp.MustCompile(`<param name="JobID">(.*)</param>`)
	listingLinkPattern = regexp.MustCompile(`<p><a href="(.*)">.*</a>`)
	fileNamePattern    = regexp.MustCompile(`([^/]+)$`)
)

// CutoutConfig carries the provider endpoints and policy knobs for the SSW
// cutout service. Defaults, when nil, fall back to the built-in attribute set.
type CutoutConfig struct {
	BaseURL         string
	DataURLTemplate string // expands the job id into the per-job status URL
	PollInterval    time.Duration
	PollMaxAttempts int // <= 0 means poll forever
	MinFieldOfView  float64
	TimeFormat      string
	FileSavePath    string
	FitsPathFormat  string // expands event id and server file name
	Defaults        []Attribute
}

func (c CutoutConfig) defaults() []Attribute {
	if c.Defaults != nil {
		return c.Defaults
	}
	return DefaultCutoutAttributes()
}

// CutoutClient drives one cutout job through submission, polling and result
// extraction.
type CutoutClient struct {
	cfg      CutoutConfig
	httpc    *http.Client
	requests RequestStore
	files    FileStore

	event    *models.SolarEvent
	attrs    []Attribute
	status   Status
	jobID    string
	recordID uint
	fileList []models.FitsFile
}

// NewCutoutClient builds a client from explicit attributes merged over the
// provider defaults.
func NewCutoutClient(cfg CutoutConfig, httpc *http.Client, requests RequestStore, files FileStore, attrs []Attribute) *CutoutClient {
	return &CutoutClient{
		cfg:      cfg,
		httpc:    httpc,
		requests: requests,
		files:    files,
		attrs:    applyCadence(Merge(cfg.defaults(), attrs)),
		status:   StatusUnsubmitted,
	}
}

// NewCutoutClientFromEvent builds a client for a solar event. When a cutout
// request for the event is already persisted, the client hydrates from that
// record, job id included, so no duplicate job is submitted to the provider.
func NewCutoutClientFromEvent(ctx context.Context, cfg CutoutConfig, httpc *http.Client, requests RequestStore, files FileStore, event models.SolarEvent, extra []Attribute) (*CutoutClient, error) {
	existing, err := requests.FindRequestByEvent(ctx, ProviderCutout, event.EventID)
	if err == nil {
		logger.Log.WithFields(map[string]interface{}{
			"event_id": event.EventID,
			"job_id":   existing.JobID,
		}).Info("Reusing existing cutout request")
		client := CutoutFromRecord(cfg, httpc, requests, files, existing)
		client.event = &event
		return client, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fovx := math.Abs(event.XMax - event.XMin)
	fovy := math.Abs(event.YMax - event.YMin)
	if fovx < cfg.MinFieldOfView {
		fovx = cfg.MinFieldOfView
	}
	if fovy < cfg.MinFieldOfView {
		fovy = cfg.MinFieldOfView
	}

	derived := []Attribute{
		NewTimeAttribute("starttime", event.StartTime, "", cfg.TimeFormat),
		NewTimeAttribute("endtime", event.EndTime, "", cfg.TimeFormat),
		NewAttribute("xcen", event.HPCX),
		NewAttribute("ycen", event.HPCY),
		NewAttribute("fovx", fovx),
		NewAttribute("fovy", fovy),
	}

	client := &CutoutClient{
		cfg:      cfg,
		httpc:    httpc,
		requests: requests,
		files:    files,
		event:    &event,
		attrs:    applyCadence(Merge(cfg.defaults(), append(derived, extra...))),
		status:   StatusUnsubmitted,
	}
	return client, nil
}

// CutoutFromRecord rebuilds a client from a persisted request record. The
// stored attributes act as overrides over the code-level defaults.
func CutoutFromRecord(cfg CutoutConfig, httpc *http.Client, requests RequestStore, files FileStore, rec *RequestRecord) *CutoutClient {
	status := rec.Status
	if status == "" {
		status = StatusUnsubmitted
	}
	return &CutoutClient{
		cfg:      cfg,
		httpc:    httpc,
		requests: requests,
		files:    files,
		attrs:    Merge(cfg.defaults(), rec.Attributes),
		status:   status,
		jobID:    rec.JobID,
		recordID: rec.ID,
	}
}

// applyCadence derives the frame count from a requested sampling cadence:
// ceil(window / cadence) frames, replacing the provider's max_frames value.
// The cadence attribute itself never goes on the wire.
func applyCadence(attrs []Attribute) []Attribute {
	cadenceAttr, ok := Find(attrs, "cadence")
	if !ok {
		return attrs
	}

	out := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		if !a.HasName("cadence") {
			out = append(out, a)
		}
	}

	cadence, ok := cadenceAttr.Value.(int)
	if !ok || cadence <= 0 {
		return out
	}
	start, okStart := Find(out, "starttime")
	end, okEnd := Find(out, "endtime")
	if !okStart || !okEnd {
		return out
	}
	startTime, okStart := start.Value.(time.Time)
	endTime, okEnd := end.Value.(time.Time)
	if !okStart || !okEnd || !endTime.After(startTime) {
		return out
	}

	frames := int(math.Ceil(endTime.Sub(startTime).Seconds() / float64(cadence)))
	return Replace(out, NewAttribute("max_frames", frames))
}

// Submit registers the job with the cutout provider. A client that already
// knows its job id does nothing. On transport or parse failure the status is
// left unchanged so the submission can be retried.
func (c *CutoutClient) Submit(ctx context.Context) error {
	if c.jobID != "" {
		return nil
	}

	body, err := fetchBody(ctx, c.httpc, queryURL(c.cfg.BaseURL, c.attrs))
	if err != nil {
		return fmt.Errorf("submitting cutout request: %w", err)
	}

	match := jobIDPattern.FindStringSubmatch(body)
	if match == nil || match[1] == "" {
		return fmt.Errorf("cutout response contains no job id")
	}
	c.jobID = match[1]

	next, err := c.status.Advance(StatusSubmitted)
	if err != nil {
		return err
	}
	c.status = next
	metrics.RequestSubmitted()

	logger.Log.WithField("job_id", c.jobID).Info("Cutout request submitted")
	return nil
}

// Fetch blocks until the provider reports the job ready, then materializes
// the file listing into fits file records. Transport errors while polling are
// transient: they are logged and the loop continues. The attempt budget bounds
// the wait; exhausting it fails the request with ErrPollTimeout.
func (c *CutoutClient) Fetch(ctx context.Context) error {
	if err := c.Submit(ctx); err != nil {
		return err
	}

	statusURL := fmt.Sprintf(c.cfg.DataURLTemplate, c.jobID)

	for attempt := 1; c.cfg.PollMaxAttempts <= 0 || attempt <= c.cfg.PollMaxAttempts; attempt++ {
		metrics.PollAttempt()
		body, err := fetchBody(ctx, c.httpc, statusURL)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"job_id":  c.jobID,
				"attempt": attempt,
			}).Warn("Cutout status poll failed")
		} else if strings.Contains(body, readyMarker) {
			next, aerr := c.status.Advance(StatusCompleted)
			if aerr != nil {
				return aerr
			}
			c.status = next
			metrics.RequestCompleted()
			return c.extractFiles(ctx, statusURL, body)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}

	if next, err := c.status.Advance(StatusFailed); err == nil {
		c.status = next
	}
	metrics.RequestFailed()
	return fmt.Errorf("job %s: %w", c.jobID, ErrPollTimeout)
}

// extractFiles resolves the file listing behind the status page into fits
// file records. A status page without a listing link means the job produced
// no files; that is a valid empty result, not an error.
func (c *CutoutClient) extractFiles(ctx context.Context, statusURL, body string) error {
	match := listingLinkPattern.FindStringSubmatch(body)
	if match == nil || match[1] == "" {
		logger.Log.WithField("job_id", c.jobID).Info("Cutout job produced no files")
		c.fileList = nil
		return nil
	}

	// The listing page is static once the ready marker is up, so a short
	// retry covers transient listing fetch failures.
	var listing string
	err := httpclient.Retry(ctx, 3, time.Second, func() error {
		var ferr error
		listing, ferr = fetchBody(ctx, c.httpc, statusURL+match[1])
		return ferr
	})
	if err != nil {
		return fmt.Errorf("fetching file listing for job %s: %w", c.jobID, err)
	}

	eventID := "unknown"
	if c.event != nil {
		eventID = c.event.EventID
	}

	c.fileList = c.fileList[:0]
	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := line
		if m := fileNamePattern.FindStringSubmatch(line); m != nil {
			name = m[1]
		}
		file := models.FitsFile{
			CutoutJobID:    c.jobID,
			ServerFileName: name,
			SourceURL:      statusURL + name,
			FilePath:       c.storagePath(eventID, name),
		}
		if c.event != nil {
			file.EventID = c.event.EventID
		}
		c.fileList = append(c.fileList, file)
	}

	logger.Log.WithFields(map[string]interface{}{
		"job_id": c.jobID,
		"files":  len(c.fileList),
	}).Info("Cutout job completed")
	return nil
}

// storagePath computes the local path for a downloaded file. Colons are
// sanitized because SOL identifiers contain them and some filesystems treat
// them as separators.
func (c *CutoutClient) storagePath(eventID, name string) string {
	rel := fmt.Sprintf(c.cfg.FitsPathFormat, eventID, name)
	return strings.ReplaceAll(path.Join(c.cfg.FileSavePath, rel), ":", "-")
}

// Save upserts the persisted request record. Nothing is written while the
// request is still unsubmitted.
func (c *CutoutClient) Save(ctx context.Context) error {
	if c.status == StatusUnsubmitted {
		return nil
	}

	rec := &RequestRecord{
		ID:         c.recordID,
		Kind:       ProviderCutout,
		Status:     c.status,
		JobID:      c.jobID,
		Attributes: c.attrs,
	}
	if c.event != nil {
		rec.EventID = c.event.EventID
	}

	if err := c.requests.SaveRequest(ctx, rec); err != nil {
		return fmt.Errorf("saving cutout request: %w", err)
	}
	c.recordID = rec.ID
	return nil
}

// SaveData persists the fits file records, reusing any row already stored
// under the same source URL.
func (c *CutoutClient) SaveData(ctx context.Context) error {
	for i := range c.fileList {
		existing, err := c.files.FindFileBySourceURL(ctx, c.fileList[i].SourceURL)
		if err == nil {
			c.fileList[i] = *existing
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := c.files.InsertFile(ctx, &c.fileList[i]); err != nil {
			return fmt.Errorf("inserting fits file %s: %w", c.fileList[i].ServerFileName, err)
		}
	}
	metrics.FilesRegistered(len(c.fileList))
	return nil
}

func (c *CutoutClient) Status() Status { return c.status }

func (c *CutoutClient) JobID() string { return c.jobID }

func (c *CutoutClient) RecordID() uint { return c.recordID }

func (c *CutoutClient) Files() []models.FitsFile { return c.fileList }

func (c *CutoutClient) Attributes() []Attribute { return c.attrs }
