package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/raterudder/growatt/pkg/log"
	"github.com/raterudder/growatt/pkg/types"
)

const (
	snapshotsCollection = "snapshots"
	faultLogsCollection = "fault_logs"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Each
// plant gets a document under "plants" with one subcollection per record
// kind; records are stored as a JSON string.
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

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// the project ID can be detected from the environment
	return nil
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

func (f *FirestoreProvider) getCollection(plantID, name string) (*firestore.CollectionRef, error) {
	if plantID == "" {
		return nil, fmt.Errorf("plantID cannot be empty")
	}
	return f.client.Collection("plants").Doc(plantID).Collection(name), nil
}

func docJSON(doc *firestore.DocumentSnapshot, dest any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("doc %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("doc %s 'json' field is not string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		return fmt.Errorf("failed to unmarshal doc %s: %w", doc.Ref.ID, err)
	}
	return nil
}

// UpsertPlantSnapshot stores snap keyed by its timestamp truncated to the
// second, replacing any snapshot already stored for that second.
func (f *FirestoreProvider) UpsertPlantSnapshot(ctx context.Context, snap types.PlantSnapshot, version int) error {
	if snap.Timestamp.IsZero() {
		return fmt.Errorf("plant snapshot missing timestamp")
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal plant snapshot: %w", err)
	}

	coll, err := f.getCollection(snap.PlantID, snapshotsCollection)
	if err != nil {
		return err
	}
	// Use RFC3339 as document ID for lexicographic ordering and efficient range queries
	docID := snap.Timestamp.UTC().Format(time.RFC3339)
	_, err = coll.Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": snap.Timestamp,
		"version":   version,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert plant snapshot: %w", err)
	}
	return nil
}

// GetPlantSnapshots returns the snapshots of a plant in [start, end), oldest
// first.
func (f *FirestoreProvider) GetPlantSnapshots(ctx context.Context, plantID string, start, end time.Time) ([]types.PlantSnapshot, error) {
	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	coll, err := f.getCollection(plantID, snapshotsCollection)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var snaps []types.PlantSnapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating plant snapshots: %w", err)
		}

		var s types.PlantSnapshot
		if err := docJSON(doc, &s); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid plant snapshot doc", slog.String("docID", doc.Ref.ID), slog.String("plantID", plantID), slog.Any("err", err))
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}

// GetLatestPlantSnapshotTime returns the timestamp and version of the newest
// snapshot of a plant, or the zero time when there is none.
func (f *FirestoreProvider) GetLatestPlantSnapshotTime(ctx context.Context, plantID string) (time.Time, int, error) {
	coll, err := f.getCollection(plantID, snapshotsCollection)
	if err != nil {
		return time.Time{}, 0, err
	}
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, 0, nil
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return time.Time{}, 0, nil
		}
		return time.Time{}, 0, fmt.Errorf("failed to get latest plant snapshot doc: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, doc.Ref.ID)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid plant snapshot doc id %s: %w", doc.Ref.ID, err)
	}

	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	return ts, version, nil
}

func faultLogDocID(date string, page int) string {
	return date + "_" + strconv.Itoa(page)
}

// UpsertFaultLogPage stores one fault log page keyed by date and page number.
func (f *FirestoreProvider) UpsertFaultLogPage(ctx context.Context, page types.FaultLogPage) error {
	if page.Date == "" {
		return fmt.Errorf("fault log page missing date")
	}
	jsonBytes, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal fault log page: %w", err)
	}

	coll, err := f.getCollection(page.PlantID, faultLogsCollection)
	if err != nil {
		return err
	}
	_, err = coll.Doc(faultLogDocID(page.Date, page.Page)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"date":      page.Date,
		"page":      page.Page,
		"fetchedAt": page.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert fault log page: %w", err)
	}
	return nil
}

// GetFaultLogPages returns every stored page of a plant's fault log for date,
// ordered by page number.
func (f *FirestoreProvider) GetFaultLogPages(ctx context.Context, plantID, date string) ([]types.FaultLogPage, error) {
	coll, err := f.getCollection(plantID, faultLogsCollection)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where("date", "==", date).
		Documents(ctx)
	defer iter.Stop()

	var pages []types.FaultLogPage
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating fault log pages: %w", err)
		}

		var p types.FaultLogPage
		if err := docJSON(doc, &p); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid fault log doc", slog.String("docID", doc.Ref.ID), slog.String("plantID", plantID), slog.Any("err", err))
			return nil, err
		}
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
	return pages, nil
}
