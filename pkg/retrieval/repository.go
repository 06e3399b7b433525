package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helioscope/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestModel is the persisted form of a provider request.
type RequestModel struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"column:kind;index:idx_requests_kind_job;index:idx_requests_kind_event"`
	Status    string `gorm:"column:status"`
	JobID     string `gorm:"column:job_id;index:idx_requests_kind_job"`
	EventID   string `gorm:"column:event_id;index:idx_requests_kind_event"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Parameters []ParameterModel `gorm:"foreignKey:RequestID"`
}

func (RequestModel) TableName() string {
	return "service_requests"
}

// ParameterModel stores one request attribute. The value lives in exactly one
// of the typed columns, selected by ValueType; list values serialize to JSON.
type ParameterModel struct {
	ID          uint   `gorm:"primaryKey"`
	RequestID   uint   `gorm:"column:request_id;index"`
	Key         string `gorm:"column:key"`
	QueryKey    string `gorm:"column:query_key"`
	ValueType   string `gorm:"column:value_type"`
	Format      string `gorm:"column:format"`
	Description string `gorm:"column:description"`

	StringValue *string        `gorm:"column:string_value"`
	IntValue    *int64         `gorm:"column:int_value"`
	FloatValue  *float64       `gorm:"column:float_value"`
	TimeValue   *time.Time     `gorm:"column:time_value"`
	ListValue   datatypes.JSON `gorm:"column:list_value"`
}

func (ParameterModel) TableName() string {
	return "service_request_parameters"
}

// EventModel is the persisted form of a HEK solar event.
type EventModel struct {
	ID          uint   `gorm:"primaryKey"`
	EventID     string `gorm:"column:event_id;uniqueIndex"`
	SOLStandard string `gorm:"column:sol_standard"`
	StartTime   time.Time
	EndTime     time.Time

	CoordUnit string  `gorm:"column:coord_unit"`
	XMin      float64 `gorm:"column:x_min"`
	XMax      float64 `gorm:"column:x_max"`
	YMin      float64 `gorm:"column:y_min"`
	YMax      float64 `gorm:"column:y_max"`
	HPCX      float64 `gorm:"column:hpc_x"`
	HPCY      float64 `gorm:"column:hpc_y"`
	HGCX      float64 `gorm:"column:hgc_x"`
	HGCY      float64 `gorm:"column:hgc_y"`

	FRMIdentifier string            `gorm:"column:frm_identifier"`
	SearchFRMName string            `gorm:"column:search_frm_name"`
	Description   string            `gorm:"column:description"`
	Source        string            `gorm:"column:source"`
	Raw           datatypes.JSONMap `gorm:"column:raw"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (EventModel) TableName() string {
	return "solar_events"
}

// FitsFileModel is the persisted form of one cutout data product.
type FitsFileModel struct {
	ID             uint   `gorm:"primaryKey"`
	EventID        string `gorm:"column:event_id;index"`
	CutoutJobID    string `gorm:"column:cutout_job_id;index"`
	ServerFileName string `gorm:"column:server_file_name"`
	SourceURL      string `gorm:"column:source_url;uniqueIndex"`
	FilePath       string `gorm:"column:file_path"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (FitsFileModel) TableName() string {
	return "fits_files"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RequestModel{}, &ParameterModel{}, &EventModel{}, &FitsFileModel{})
}

func (r *Repository) FindRequestByID(ctx context.Context, id uint) (*RequestRecord, error) {
	var rec RequestModel
	err := r.db.WithContext(ctx).Preload("Parameters").First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return requestFromModel(rec)
}

func (r *Repository) FindRequestByJobID(ctx context.Context, kind ProviderKind, jobID string) (*RequestRecord, error) {
	if jobID == "" {
		return nil, ErrNotFound
	}
	var rec RequestModel
	err := r.db.WithContext(ctx).Preload("Parameters").
		Where("kind = ? AND job_id = ?", string(kind), jobID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return requestFromModel(rec)
}

func (r *Repository) FindRequestByEvent(ctx context.Context, kind ProviderKind, eventID string) (*RequestRecord, error) {
	if eventID == "" {
		return nil, ErrNotFound
	}
	var rec RequestModel
	err := r.db.WithContext(ctx).Preload("Parameters").
		Where("kind = ? AND event_id = ?", string(kind), eventID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return requestFromModel(rec)
}

// SaveRequest upserts a request record. Identity resolution order: an
// existing row with the same kind and job id, then the record's own id from a
// prior save, then a fresh insert. Attributes reconcile by name so repeated
// saves never duplicate parameter rows.
func (r *Repository) SaveRequest(ctx context.Context, rec *RequestRecord) error {
	db := r.db.WithContext(ctx)

	if rec.ID == 0 && rec.JobID != "" {
		var existing RequestModel
		err := db.Where("kind = ? AND job_id = ?", string(rec.Kind), rec.JobID).First(&existing).Error
		if err == nil {
			rec.ID = existing.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	model := RequestModel{
		ID:      rec.ID,
		Kind:    string(rec.Kind),
		Status:  string(rec.Status),
		JobID:   rec.JobID,
		EventID: rec.EventID,
	}

	if rec.ID == 0 {
		params, err := parametersFromAttributes(rec.Attributes, 0)
		if err != nil {
			return err
		}
		model.Parameters = params
		if err := db.Create(&model).Error; err != nil {
			return err
		}
		rec.ID = model.ID
		return nil
	}

	if err := db.Model(&RequestModel{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"status":     string(rec.Status),
		"job_id":     rec.JobID,
		"event_id":   rec.EventID,
		"updated_at": time.Now().UTC(),
	}).Error; err != nil {
		return err
	}

	return r.reconcileParameters(ctx, rec.ID, rec.Attributes)
}

// reconcileParameters updates parameter rows in place by name and inserts
// rows for names not seen before. Persisted rows keep their storage identity.
func (r *Repository) reconcileParameters(ctx context.Context, requestID uint, attrs []Attribute) error {
	db := r.db.WithContext(ctx)

	var existing []ParameterModel
	if err := db.Where("request_id = ?", requestID).Find(&existing).Error; err != nil {
		return err
	}
	byKey := make(map[string]ParameterModel, len(existing))
	for _, p := range existing {
		byKey[p.Key] = p
	}

	for _, attr := range attrs {
		param, err := parameterFromAttribute(attr, requestID)
		if err != nil {
			return err
		}
		if prev, ok := byKey[attr.Name]; ok {
			param.ID = prev.ID
			if err := db.Save(&param).Error; err != nil {
				return err
			}
			continue
		}
		if err := db.Create(&param).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpsertEvent stores an event, keeping the first persisted row authoritative:
// if the event id is already stored the stored row is returned unchanged.
func (r *Repository) UpsertEvent(ctx context.Context, event models.SolarEvent) (models.SolarEvent, error) {
	db := r.db.WithContext(ctx)

	var existing EventModel
	err := db.Where("event_id = ?", event.EventID).First(&existing).Error
	if err == nil {
		return eventFromModel(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SolarEvent{}, err
	}

	model := eventToModel(event)
	if err := db.Create(&model).Error; err != nil {
		// A concurrent insert may have won the unique index race; the row
		// that made it in first is canonical.
		var winner EventModel
		if ferr := db.Where("event_id = ?", event.EventID).First(&winner).Error; ferr == nil {
			return eventFromModel(winner), nil
		}
		return models.SolarEvent{}, err
	}
	return eventFromModel(model), nil
}

func (r *Repository) FindEvent(ctx context.Context, eventID string) (*models.SolarEvent, error) {
	var model EventModel
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	event := eventFromModel(model)
	return &event, nil
}

func (r *Repository) FindFileBySourceURL(ctx context.Context, sourceURL string) (*models.FitsFile, error) {
	var model FitsFileModel
	err := r.db.WithContext(ctx).Where("source_url = ?", sourceURL).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	file := fileFromModel(model)
	return &file, nil
}

func (r *Repository) InsertFile(ctx context.Context, file *models.FitsFile) error {
	model := FitsFileModel{
		EventID:        file.EventID,
		CutoutJobID:    file.CutoutJobID,
		ServerFileName: file.ServerFileName,
		SourceURL:      file.SourceURL,
		FilePath:       file.FilePath,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		// Unique source URL collision: the stored row is canonical.
		var winner FitsFileModel
		if ferr := r.db.WithContext(ctx).Where("source_url = ?", file.SourceURL).First(&winner).Error; ferr == nil {
			*file = fileFromModel(winner)
			return nil
		}
		return err
	}
	file.ID = model.ID
	return nil
}

const (
	valueTypeString = "string"
	valueTypeInt    = "int"
	valueTypeFloat  = "float"
	valueTypeTime   = "time"
	valueTypeList   = "list"
)

func parameterFromAttribute(attr Attribute, requestID uint) (ParameterModel, error) {
	param := ParameterModel{
		RequestID:   requestID,
		Key:         attr.Name,
		QueryKey:    attr.QueryName,
		Format:      attr.Format,
		Description: attr.Description,
	}
	switch v := attr.Value.(type) {
	case string:
		param.ValueType = valueTypeString
		param.StringValue = &v
	case int:
		param.ValueType = valueTypeInt
		iv := int64(v)
		param.IntValue = &iv
	case float64:
		param.ValueType = valueTypeFloat
		param.FloatValue = &v
	case time.Time:
		param.ValueType = valueTypeTime
		tv := v
		param.TimeValue = &tv
	case []string:
		param.ValueType = valueTypeList
		encoded, err := json.Marshal(v)
		if err != nil {
			return ParameterModel{}, fmt.Errorf("encoding list attribute %q: %w", attr.Name, err)
		}
		param.ListValue = datatypes.JSON(encoded)
	default:
		return ParameterModel{}, fmt.Errorf("unsupported attribute value type %T for %q", attr.Value, attr.Name)
	}
	return param, nil
}

func attributeFromParameter(param ParameterModel) (Attribute, error) {
	attr := Attribute{
		Name:        param.Key,
		QueryName:   param.QueryKey,
		Format:      param.Format,
		Description: param.Description,
	}
	switch param.ValueType {
	case valueTypeString:
		if param.StringValue != nil {
			attr.Value = *param.StringValue
		}
	case valueTypeInt:
		if param.IntValue != nil {
			attr.Value = int(*param.IntValue)
		}
	case valueTypeFloat:
		if param.FloatValue != nil {
			attr.Value = *param.FloatValue
		}
	case valueTypeTime:
		if param.TimeValue != nil {
			attr.Value = *param.TimeValue
		}
	case valueTypeList:
		var items []string
		if err := json.Unmarshal(param.ListValue, &items); err != nil {
			return Attribute{}, fmt.Errorf("decoding list attribute %q: %w", param.Key, err)
		}
		attr.Value = items
	default:
		return Attribute{}, fmt.Errorf("unknown parameter value type %q for %q", param.ValueType, param.Key)
	}
	return attr, nil
}

func parametersFromAttributes(attrs []Attribute, requestID uint) ([]ParameterModel, error) {
	params := make([]ParameterModel, 0, len(attrs))
	for _, attr := range attrs {
		param, err := parameterFromAttribute(attr, requestID)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, nil
}

func requestFromModel(model RequestModel) (*RequestRecord, error) {
	attrs := make([]Attribute, 0, len(model.Parameters))
	for _, param := range model.Parameters {
		attr, err := attributeFromParameter(param)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return &RequestRecord{
		ID:         model.ID,
		Kind:       ProviderKind(model.Kind),
		Status:     Status(model.Status),
		JobID:      model.JobID,
		EventID:    model.EventID,
		Attributes: attrs,
	}, nil
}

func eventToModel(event models.SolarEvent) EventModel {
	return EventModel{
		EventID:       event.EventID,
		SOLStandard:   event.SOLStandard,
		StartTime:     event.StartTime,
		EndTime:       event.EndTime,
		CoordUnit:     event.CoordUnit,
		XMin:          event.XMin,
		XMax:          event.XMax,
		YMin:          event.YMin,
		YMax:          event.YMax,
		HPCX:          event.HPCX,
		HPCY:          event.HPCY,
		HGCX:          event.HGCX,
		HGCY:          event.HGCY,
		FRMIdentifier: event.FRMIdentifier,
		SearchFRMName: event.SearchFRMName,
		Description:   event.Description,
		Source:        event.Source,
		Raw:           datatypes.JSONMap(event.Raw),
	}
}

func eventFromModel(model EventModel) models.SolarEvent {
	return models.SolarEvent{
		EventID:       model.EventID,
		SOLStandard:   model.SOLStandard,
		StartTime:     model.StartTime,
		EndTime:       model.EndTime,
		CoordUnit:     model.CoordUnit,
		XMin:          model.XMin,
		XMax:          model.XMax,
		YMin:          model.YMin,
		YMax:          model.YMax,
		HPCX:          model.HPCX,
		HPCY:          model.HPCY,
		HGCX:          model.HGCX,
		HGCY:          model.HGCY,
		FRMIdentifier: model.FRMIdentifier,
		SearchFRMName: model.SearchFRMName,
		Description:   model.Description,
		Source:        model.Source,
		Raw:           map[string]interface{}(model.Raw),
	}
}

func fileFromModel(model FitsFileModel) models.FitsFile {
	return models.FitsFile{
		ID:             model.ID,
		EventID:        model.EventID,
		CutoutJobID:    model.CutoutJobID,
		ServerFileName: model.ServerFileName,
		SourceURL:      model.SourceURL,
		FilePath:       model.FilePath,
	}
}
