// Package mongo implements the document adapter on the official
// MongoDB driver.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"querypilot/internal/adapter"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
)

// Config configures the client. Database is derived from the URL path
// when left empty
type Config struct {
	URL      string
	Database string
}

const (
	serverSelectionTimeout = 10 * time.Second
	connectTimeout         = 10 * time.Second
	socketTimeout          = 30 * time.Second
	idleClose              = 45 * time.Second
)

// test seam
var connect = mongo.Connect

// Adapter is the document backend
type Adapter struct {
	name   string
	dbName string
	client *mongo.Client
	log    *logger.Logger
	memo   adapter.SchemaMemo
}

// Open connects the client and pings once. A failed ping is logged and
// tolerated; the server may come up later
func Open(ctx context.Context, name string, cfg Config) (*Adapter, error) {
	dbName := cfg.Database
	if dbName == "" {
		var err error
		if dbName, err = databaseFromURL(cfg.URL); err != nil {
			return nil, err
		}
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetConnectTimeout(connectTimeout).
		SetSocketTimeout(socketTimeout).
		SetMaxConnIdleTime(idleClose).
		SetRetryReads(true).
		SetRetryWrites(true)

	client, err := connect(ctx, opts)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "connect mongodb")
	}

	a := &Adapter{
		name:   name,
		dbName: dbName,
		client: client,
		log:    logger.Named("mongo_adapter"),
	}

	pctx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		a.log.Warn().Str("database", name).Err(err).Msg("mongodb ping failed, continuing")
	}
	return a, nil
}

func databaseFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "parse mongodb url")
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "", perr.InvalidArgf("mongodb url carries no database name")
	}
	return name, nil
}

// Kind reports document
func (a *Adapter) Kind() adapter.Kind { return adapter.KindDocument }

// Name returns the logical database name
func (a *Adapter) Name() string { return a.name }

// Schema samples each collection, memoized per adapter instance
func (a *Adapter) Schema(ctx context.Context) (*adapter.Database, error) {
	return a.memo.Get(ctx, a.introspect)
}

// Execute runs one aggregation pipeline. The collection name is
// validated before touching the driver and a $limit stage is appended
// when the pipeline carries none; a full result at max_rows warns
// regardless of who wrote the limit
func (a *Adapter) Execute(ctx context.Context, req adapter.Request) (*adapter.Result, error) {
	if req.Collection == "" {
		return nil, perr.Newf(perr.ErrorCodeMissingCollection, "document request without collection")
	}
	if err := ValidateCollection(req.Collection); err != nil {
		return nil, err
	}

	pipeline, _ := EnsureLimitStage(req.Pipeline, req.MaxRows)

	ctx, cancel := context.WithTimeout(ctx, socketTimeout)
	defer cancel()

	coll := a.client.Database(a.dbName).Collection(req.Collection)
	cursor, err := coll.Aggregate(ctx, toBSONPipeline(pipeline))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "aggregate %s", req.Collection)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "read aggregate cursor")
	}

	rows := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, normalizeDoc(d))
	}

	res := &adapter.Result{Rows: rows, RowCount: len(rows)}
	if hitRowCap(len(rows), req.MaxRows) {
		res.Truncated = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("results truncated to %d documents", req.MaxRows))
		a.log.Warn().Str("database", a.name).Str("collection", req.Collection).
			Int("max_rows", req.MaxRows).Msg("result truncated at row cap")
	}
	return res, nil
}

// HealthCheck pings with a 5s bound
func (a *Adapter) HealthCheck(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.client.Ping(pctx, nil); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "mongodb health check failed")
	}
	return nil
}

// Close disconnects the client and drops the schema memo
func (a *Adapter) Close(ctx context.Context) error {
	a.memo.Invalidate()
	if err := a.client.Disconnect(ctx); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "disconnect mongodb")
	}
	return nil
}
