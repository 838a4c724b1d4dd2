package arangodb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

var ErrNotFound = errors.New("document not found")

const (
	collectionFindings  = "findings"
	collectionFeedback  = "feedback_events"
	collectionKnowledge = "knowledge"
)

type Client interface {
	// Setup operations
	EnsureDatabase(ctx context.Context) error
	EnsureCollections(ctx context.Context) error

	// Write operations (append-only)
	AppendFindings(ctx context.Context, docs []FindingDoc) error
	AppendFeedback(ctx context.Context, ev FeedbackEvent) error
	IngestKnowledge(ctx context.Context, chunks []KnowledgeChunk) error

	// Read operations
	FindingsByRun(ctx context.Context, runID int64) ([]FindingDoc, error)
	FeedbackByRun(ctx context.Context, runID int64, role string) ([]FeedbackEvent, error)
	SearchKnowledge(ctx context.Context, term string, limit int) ([]KnowledgeChunk, error)

	// Utility
	Close() error
}

type Config struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

type client struct {
	conn         connection.Connection
	arangoClient arangodb.Client
	db           arangodb.Database
	cfg          Config
}

func New(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL}) // round robins from the urls. we just have one for now
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	arangoClient := arangodb.NewClient(conn)

	c := &client{
		conn:         conn,
		arangoClient: arangoClient,
		cfg:          cfg,
	}

	return c, nil
}

func (c *client) Close() error {
	return nil
}

func (c *client) EnsureDatabase(ctx context.Context) error {
	start := time.Now()

	exists, err := c.arangoClient.DatabaseExists(ctx, c.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}

	if !exists {
		_, err = c.arangoClient.CreateDatabase(ctx, c.cfg.Database, nil)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created",
			"database", c.cfg.Database,
			"duration_ms", time.Since(start).Milliseconds())
	}

	db, err := c.arangoClient.GetDatabase(ctx, c.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	c.db = db

	return nil
}

func (c *client) EnsureCollections(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	for _, name := range []string{collectionFindings, collectionFeedback, collectionKnowledge} {
		if err := c.ensureCollection(ctx, name); err != nil {
			return err
		}
	}

	return nil
}

func (c *client) ensureCollection(ctx context.Context, name string) error {
	exists, err := c.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}

	if !exists {
		colType := arangodb.CollectionTypeDocument
		props := &arangodb.CreateCollectionPropertiesV2{Type: &colType}

		_, err = c.db.CreateCollectionV2(ctx, name, props)
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		slog.InfoContext(ctx, "arangodb collection created", "collection", name)
	}

	return nil
}

// AppendFindings inserts finding documents into the findings collection.
// Documents are keyed by run + URL + title, so re-appending the same finding
// is a no-op rather than a duplicate. Existing documents are never updated.
func (c *client) AppendFindings(ctx context.Context, docs []FindingDoc) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	col, err := c.db.GetCollection(ctx, collectionFindings, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collectionFindings, err)
	}

	for i := range docs {
		if docs[i].Key == "" {
			docs[i].Key = makeKey(fmt.Sprintf("%d:%s:%s", docs[i].RunID, docs[i].URL, docs[i].Title))
		}
	}

	reader, err := col.CreateDocuments(ctx, docs)
	if err != nil {
		return fmt.Errorf("create finding documents: %w", err)
	}

	// Consume all responses (ignoring errors for duplicate keys)
	for {
		_, readErr := reader.Read()
		if readErr != nil {
			break
		}
	}

	slog.DebugContext(ctx, "arangodb findings appended",
		"count", len(docs),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

func (c *client) AppendFeedback(ctx context.Context, ev FeedbackEvent) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	col, err := c.db.GetCollection(ctx, collectionFeedback, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collectionFeedback, err)
	}

	if ev.Key == "" {
		ev.Key = makeKey(fmt.Sprintf("%d:%s:%d", ev.RunID, ev.Role, ev.VersionNumber))
	}

	if _, err := col.CreateDocument(ctx, ev); err != nil {
		return fmt.Errorf("create feedback event: %w", err)
	}

	return nil
}

func (c *client) IngestKnowledge(ctx context.Context, chunks []KnowledgeChunk) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if len(chunks) == 0 {
		return nil
	}

	col, err := c.db.GetCollection(ctx, collectionKnowledge, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collectionKnowledge, err)
	}

	for i := range chunks {
		if chunks[i].Key == "" {
			chunks[i].Key = makeKey(chunks[i].Topic + ":" + chunks[i].Title)
		}
	}

	reader, err := col.CreateDocuments(ctx, chunks)
	if err != nil {
		return fmt.Errorf("create knowledge documents: %w", err)
	}

	for {
		_, readErr := reader.Read()
		if readErr != nil {
			break
		}
	}

	return nil
}

func (c *client) FindingsByRun(ctx context.Context, runID int64) ([]FindingDoc, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		FOR f IN findings
			FILTER f.run_id == @run_id
			SORT f.gathered_at ASC
			RETURN f
	`

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"run_id": runID},
	})
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close()

	var results []FindingDoc
	for cursor.HasMore() {
		var doc FindingDoc
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		results = append(results, doc)
	}

	return results, nil
}

func (c *client) FeedbackByRun(ctx context.Context, runID int64, role string) ([]FeedbackEvent, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		FOR e IN feedback_events
			FILTER e.run_id == @run_id
			FILTER @role == "" OR e.role == @role
			SORT e.version_number ASC, e.recorded_at ASC
			RETURN e
	`

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"run_id": runID, "role": role},
	})
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close()

	var results []FeedbackEvent
	for cursor.HasMore() {
		var doc FeedbackEvent
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		results = append(results, doc)
	}

	return results, nil
}

func (c *client) SearchKnowledge(ctx context.Context, term string, limit int) ([]KnowledgeChunk, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 {
		limit = 5
	}

	start := time.Now()

	query := `
		FOR k IN knowledge
			FILTER CONTAINS(LOWER(k.content), LOWER(@term)) OR CONTAINS(LOWER(k.title), LOWER(@term))
			LIMIT @limit
			RETURN k
	`

	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"term": term, "limit": limit},
	})
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close()

	var results []KnowledgeChunk
	for cursor.HasMore() {
		var doc KnowledgeChunk
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		results = append(results, doc)
	}

	slog.DebugContext(ctx, "arangodb knowledge search completed",
		"term", term,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())

	return results, nil
}

func makeKey(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
