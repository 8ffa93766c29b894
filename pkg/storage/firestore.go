package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

const (
	kvCollection        = "kv"
	telemetryCollection = "telemetry_history"
	decisionCollection  = "decision_history"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Key-value paths are documents in the "kv" collection and history is kept in
// collections keyed by timestamp.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// kvDoc maps a path onto a document id. Firestore ids cannot contain '/'.
func (f *FirestoreProvider) kvDoc(path string) (*firestore.DocumentRef, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return f.client.Collection(kvCollection).Doc(strings.ReplaceAll(path, "/", ":")), nil
}

// jsonField extracts the "json" string field the values are stored in.
func jsonField(ctx context.Context, doc *firestore.DocumentSnapshot) (json.RawMessage, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return nil, fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("docID", doc.Ref.ID))
		return nil, fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	return json.RawMessage(jsonStr), nil
}

// Get reads the "json" field of the path's document.
func (f *FirestoreProvider) Get(ctx context.Context, path string, dst any) error {
	ref, err := f.kvDoc(path)
	if err != nil {
		return err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	raw, err := jsonField(ctx, doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal value", slog.String("path", path), slog.Any("err", err))
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

// Set stores the value as a JSON string for portability.
func (f *FirestoreProvider) Set(ctx context.Context, path string, value any) error {
	ref, err := f.kvDoc(path)
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"path":      path,
		"updatedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Watch listens to realtime snapshots of the path's document.
func (f *FirestoreProvider) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	ref, err := f.kvDoc(path)
	if err != nil {
		return nil, err
	}
	iter := ref.Snapshots(ctx)
	ch := make(chan Snapshot)
	go func() {
		defer close(ch)
		defer iter.Stop()
		for {
			doc, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled && !errors.Is(err, iterator.Done) {
					log.Ctx(ctx).ErrorContext(ctx, "watch failed", slog.String("path", path), slog.Any("error", err))
				}
				return
			}
			snap := Snapshot{Path: path}
			if doc.Exists() {
				raw, err := jsonField(ctx, doc)
				if err != nil {
					continue
				}
				snap.Value = raw
			}
			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// historyDocID uses RFC3339Nano as document ID for lexicographic ordering and
// efficient range queries. The fixed width layout keeps ordering correct.
func historyDocID(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func (f *FirestoreProvider) insertHistory(ctx context.Context, collection string, ts time.Time, value any) error {
	if ts.IsZero() {
		return fmt.Errorf("%s record missing timestamp", collection)
	}
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", collection, err)
	}
	_, err = f.client.Collection(collection).Doc(historyDocID(ts)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": ts,
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s record: %w", collection, err)
	}
	return nil
}

// getHistory calls fn with the JSON of every document in [start, end).
// Uses document ID range queries for efficient filtering without reading all documents.
func (f *FirestoreProvider) getHistory(ctx context.Context, collection string, start, end time.Time, fn func(json.RawMessage) error) error {
	coll := f.client.Collection(collection)
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(historyDocID(start))).
		Where(firestore.DocumentID, "<", coll.Doc(historyDocID(end))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("error iterating %s: %w", collection, err)
		}
		raw, err := jsonField(ctx, doc)
		if err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal history record", slog.String("collection", collection), slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			return fmt.Errorf("failed to unmarshal %s record (id=%s): %w", collection, doc.Ref.ID, err)
		}
	}
	return nil
}

// InsertTelemetry adds a sample to the "telemetry_history" collection.
func (f *FirestoreProvider) InsertTelemetry(ctx context.Context, sample types.Telemetry) error {
	return f.insertHistory(ctx, telemetryCollection, sample.Timestamp, sample)
}

// GetTelemetryHistory retrieves samples within the specified time range.
func (f *FirestoreProvider) GetTelemetryHistory(ctx context.Context, start, end time.Time) ([]types.Telemetry, error) {
	var samples []types.Telemetry
	err := f.getHistory(ctx, telemetryCollection, start, end, func(raw json.RawMessage) error {
		var s types.Telemetry
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		samples = append(samples, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// GetLatestTelemetry retrieves the last stored sample.
func (f *FirestoreProvider) GetLatestTelemetry(ctx context.Context) (*types.Telemetry, error) {
	// firestore automatically creates indexes for top-level fields
	iter := f.client.Collection(telemetryCollection).
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest telemetry doc: %w", err)
	}
	raw, err := jsonField(ctx, doc)
	if err != nil {
		return nil, err
	}
	var s types.Telemetry
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal telemetry (id=%s): %w", doc.Ref.ID, err)
	}
	return &s, nil
}

// InsertDecision adds a record to the "decision_history" collection.
func (f *FirestoreProvider) InsertDecision(ctx context.Context, record types.DecisionRecord) error {
	return f.insertHistory(ctx, decisionCollection, record.Timestamp, record)
}

// GetDecisionHistory retrieves decision records within the specified time range.
func (f *FirestoreProvider) GetDecisionHistory(ctx context.Context, start, end time.Time) ([]types.DecisionRecord, error) {
	var records []types.DecisionRecord
	err := f.getHistory(ctx, decisionCollection, start, end, func(raw json.RawMessage) error {
		var r types.DecisionRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
