package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gl-apps/glsync/internal/config"
	"github.com/gl-apps/glsync/internal/glide"
	"github.com/gl-apps/glsync/internal/ledger"
	"github.com/gl-apps/glsync/internal/mapping"
	"github.com/gl-apps/glsync/internal/models"
	"github.com/gl-apps/glsync/internal/transform"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrSyncLogCreate indicates the run could not open its sync log row. The run
// aborts before touching the external system and leaves no audit trail, so
// callers must surface it distinctly from an ordinary failed run.
var ErrSyncLogCreate = errors.New("sync: create sync log entry failed")

// Result summarizes one sync run for the triggering caller. It is transient;
// the sync log and error ledger are the durable record.
type Result struct {
	Success bool `json:"success"`
	// RecordsProcessed counts rows successfully written to the destination.
	RecordsProcessed int `json:"recordsProcessed"`
	// FailedRecords counts accumulated error entries. A batch failure is one
	// entry covering many rows, so this is coarser than a per-row count.
	FailedRecords int                 `json:"failedRecords"`
	Errors        []ledger.ErrorEntry `json:"errors,omitempty"`
}

// Orchestrator drives one mapping through fetch, transform, batched upsert,
// and relationship resolution. All collaborators are injected.
type Orchestrator struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	dest     Destination
	fetcher  glide.RowFetcher
	resolver RelationshipResolver

	fetchLimit int
	batchSize  int
	now        func() time.Time
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(conn *gorm.DB, led *ledger.Ledger, dest Destination, fetcher glide.RowFetcher, resolver RelationshipResolver, cfg config.SyncConfig) *Orchestrator {
	fetchLimit := cfg.FetchLimit
	if fetchLimit <= 0 {
		fetchLimit = 1000
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Orchestrator{
		db:         conn,
		ledger:     led,
		dest:       dest,
		fetcher:    fetcher,
		resolver:   resolver,
		fetchLimit: fetchLimit,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// SyncData executes one run for a mapping. The returned error is non-nil only
// for hard failures: ErrSyncLogCreate for the degenerate no-log case, or the
// fetch/load-phase error behind a failed run. Row-, batch-, and resolver-level
// problems are absorbed into the Result and the error ledger instead.
func (o *Orchestrator) SyncData(ctx context.Context, connectionID, mappingID string) (Result, error) {
	if o == nil || o.db == nil {
		return Result{}, fmt.Errorf("sync: orchestrator not initialized")
	}

	logID, errLog := o.ledger.CreateLog(ctx, mappingID, "Sync started")
	if errLog != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSyncLogCreate, errLog)
	}

	result, errRun := o.run(ctx, logID, connectionID, mappingID)
	if errRun != nil {
		if errComplete := o.ledger.CompleteLog(ctx, logID, models.SyncStatusFailed, fmt.Sprintf("Sync failed: %v", errRun), 0); errComplete != nil {
			log.WithError(errComplete).WithField("log_id", logID).Warn("sync: finalize failed log entry")
		}
		return Result{}, errRun
	}
	return result, nil
}

// run is the processing phase. Any error it returns means row processing never
// completed its setup; everything past the fetch is absorbed.
func (o *Orchestrator) run(ctx context.Context, logID, connectionID, mappingID string) (Result, error) {
	var conn models.Connection
	if errFind := o.db.WithContext(ctx).Where("id = ?", connectionID).First(&conn).Error; errFind != nil {
		return Result{}, fmt.Errorf("load connection: %w", errFind)
	}

	var m models.Mapping
	if errFind := o.db.WithContext(ctx).Where("id = ?", mappingID).First(&m).Error; errFind != nil {
		return Result{}, fmt.Errorf("load mapping: %w", errFind)
	}
	if !m.Enabled {
		return Result{}, fmt.Errorf("mapping %s is disabled", mappingID)
	}
	if m.SyncDirection != models.SyncDirectionToSupabase {
		return Result{}, fmt.Errorf("unsupported sync direction %q", m.SyncDirection)
	}

	cm, errParse := mapping.Parse(m.ColumnMappings)
	if errParse != nil {
		return Result{}, errParse
	}
	cm = mapping.EnsureRowIDMapping(cm)

	o.updateLog(ctx, logID, models.SyncStatusProcessing, "Fetching data from Glide", nil)

	rows, errFetch := o.fetcher.FetchRows(ctx, glide.Credentials{AppID: conn.AppID, APIKey: conn.APIKey}, m.GlideTable, o.fetchLimit)
	if errFetch != nil {
		return Result{}, errFetch
	}

	zero := 0
	o.updateLog(ctx, logID, models.SyncStatusProcessing, fmt.Sprintf("Processing %d records", len(rows)), &zero)

	destRows, runErrors := o.transformAll(ctx, mappingID, rows, cm)

	written := o.writeBatches(ctx, logID, mappingID, m.SupabaseTable, destRows, &runErrors)

	if len(destRows) > 0 {
		o.resolveRelationships(ctx, mappingID, m.SupabaseTable, &runErrors)
	}

	status := models.SyncStatusCompleted
	if len(runErrors) > 0 {
		status = models.SyncStatusCompletedWithErrors
	}
	message := fmt.Sprintf("Sync completed. Processed %d records with %d errors.", written, len(runErrors))
	if errComplete := o.ledger.CompleteLog(ctx, logID, status, message, written); errComplete != nil {
		log.WithError(errComplete).WithField("log_id", logID).Warn("sync: finalize log entry")
	}

	touchLastSync(ctx, o.db, connectionID, o.now())

	return Result{
		Success:          true,
		RecordsProcessed: written,
		FailedRecords:    len(runErrors),
		Errors:           runErrors,
	}, nil
}

// transformAll runs every fetched row through the record transformer and
// validator. Rows without a row identifier are dropped; every captured error
// is appended to the ledger as well as the run summary. One malformed record
// never blocks the rest.
func (o *Orchestrator) transformAll(ctx context.Context, mappingID string, rows []map[string]any, cm mapping.ColumnMap) ([]map[string]any, []ledger.ErrorEntry) {
	destRows := make([]map[string]any, 0, len(rows))
	var runErrors []ledger.ErrorEntry

	for _, row := range rows {
		dest, transformErrs := transform.TransformRecord(row, cm)
		validationErrs := transform.ValidateRecord(dest, cm)

		// A flagged NaN still ships as null so the rest of the row lands,
		// mirroring what the value would serialize to anyway. Sanitized before
		// the entries are persisted so snapshots stay JSON-encodable.
		for field, value := range dest {
			if f, ok := value.(float64); ok && math.IsNaN(f) {
				dest[field] = nil
			}
		}

		for _, entry := range append(transformErrs, validationErrs...) {
			runErrors = append(runErrors, entry)
			o.persistError(ctx, mappingID, entry)
		}

		if !transform.HasRowID(dest) {
			continue
		}
		destRows = append(destRows, dest)
	}
	return destRows, runErrors
}

// writeBatches upserts destination rows in fixed-size batches, updating run
// progress after each successful batch. A failed batch is one DATABASE_ERROR
// and the next batch still runs.
func (o *Orchestrator) writeBatches(ctx context.Context, logID, mappingID, table string, destRows []map[string]any, runErrors *[]ledger.ErrorEntry) int {
	written := 0
	for i := 0; i < len(destRows); i += o.batchSize {
		end := i + o.batchSize
		if end > len(destRows) {
			end = len(destRows)
		}
		batch := destRows[i:end]

		if errUpsert := o.dest.UpsertBatch(ctx, table, batch); errUpsert != nil {
			snapshot := map[string]any{"batch_index": i, "batch_size": len(batch)}
			for k, v := range pgErrorDetails(errUpsert) {
				snapshot[k] = v
			}
			entry := ledger.ErrorEntry{
				Type:      models.ErrorTypeDatabase,
				Message:   errUpsert.Error(),
				Record:    snapshot,
				Timestamp: o.now().UTC(),
				Retryable: true,
			}
			*runErrors = append(*runErrors, entry)
			o.persistError(ctx, mappingID, entry)
			continue
		}

		written += len(batch)
		progress := written
		o.updateLog(ctx, logID, "", "", &progress)
	}
	return written
}

// resolveRelationships triggers the post-write resolver. Best effort: a
// failure is recorded and the run outcome is unaffected.
func (o *Orchestrator) resolveRelationships(ctx context.Context, mappingID, table string, runErrors *[]ledger.ErrorEntry) {
	if o.resolver == nil {
		return
	}
	errResolve := o.resolver.MapRelationships(ctx, table)
	if errResolve == nil {
		return
	}

	log.WithError(errResolve).WithField("table", table).Warn("sync: relationship mapping failed")
	entry := ledger.ErrorEntry{
		Type:      models.ErrorTypeRelationship,
		Message:   errResolve.Error(),
		Timestamp: o.now().UTC(),
		Retryable: true,
	}
	*runErrors = append(*runErrors, entry)
	o.persistError(ctx, mappingID, entry)
}

// persistError appends an entry to the durable error ledger. The ledger is
// the audit trail, but a ledger write failure must not disturb the run.
func (o *Orchestrator) persistError(ctx context.Context, mappingID string, entry ledger.ErrorEntry) {
	if _, errRecord := o.ledger.RecordError(ctx, mappingID, entry.Type, entry.Message, entry.Record, entry.Retryable); errRecord != nil {
		log.WithError(errRecord).WithField("mapping_id", mappingID).Warn("sync: persist error entry failed")
	}
}

// updateLog best-effort updates the run's log row.
func (o *Orchestrator) updateLog(ctx context.Context, logID, status, message string, recordsProcessed *int) {
	if errUpdate := o.ledger.UpdateLog(ctx, logID, status, message, recordsProcessed); errUpdate != nil {
		log.WithError(errUpdate).WithField("log_id", logID).Warn("sync: update log entry failed")
	}
}
