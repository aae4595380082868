package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoConfig configures the MongoDB-backed rule store.
type MongoConfig struct {
	ConnectionURL  string        `env:"RULES_MONGO_URL,required"`                     // ConnectionURL is the MongoDB connection string.
	Database       string        `env:"RULES_MONGO_DATABASE" envDefault:"notifykit"`  // Database holds the rules collection.
	Collection     string        `env:"RULES_MONGO_COLLECTION" envDefault:"rules"`    // Collection stores one document per rule.
	ConnectTimeout time.Duration `env:"RULES_MONGO_CONNECT_TIMEOUT" envDefault:"10s"` // ConnectTimeout bounds the initial connection.
	RetryAttempts  int           `env:"RULES_MONGO_RETRY_ATTEMPTS" envDefault:"3"`    // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"RULES_MONGO_RETRY_INTERVAL" envDefault:"5s"`   // RetryInterval is the wait between attempts.
}

// ruleDoc is the persisted shape: indexed identity fields plus the rule
// serialized as JSON, which survives the []any payloads inside
// conditions and action parameters without a custom bson mapping.
type ruleDoc struct {
	ID        string    `bson:"_id"`
	TenantID  string    `bson:"tenant_id"`
	Version   int       `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Data      []byte    `bson:"data"`
}

// MongoStore is a Store implementation persisting rules in MongoDB.
// Writers go through MongoDB's per-document atomicity; List serves
// point-in-time snapshots ordered by creation time so priority ties keep
// insertion order.
type MongoStore struct {
	coll  *mongo.Collection
	clock func() time.Time
}

// NewMongoStore creates a rule store on an existing collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll, clock: time.Now}
}

// ConnectMongoStore dials MongoDB with retry and returns a store bound to
// the configured collection.
func ConnectMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	var client *mongo.Client
	var err error
	for i := 0; i < max(cfg.RetryAttempts, 1); i++ {
		client, err = mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return NewMongoStore(client.Database(cfg.Database).Collection(cfg.Collection)), nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrStoreUnavailable, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrStoreUnavailable, err)
}

func (s *MongoStore) Create(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	now := s.clock()
	rule.Version = 1
	rule.CreatedAt = now
	rule.UpdatedAt = now

	doc, err := encodeRule(rule)
	if err != nil {
		return Rule{}, err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Rule{}, ErrRuleExists
		}
		return Rule{}, fmt.Errorf("failed to insert rule: %w", err)
	}
	return rule, nil
}

func (s *MongoStore) Update(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}

	existing, err := s.Get(ctx, rule.TenantID, rule.ID)
	if err != nil {
		return Rule{}, err
	}

	rule.Version = existing.Version + 1
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.clock()

	doc, err := encodeRule(rule)
	if err != nil {
		return Rule{}, err
	}
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rule.ID, "tenant_id": rule.TenantID}, doc)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to update rule: %w", err)
	}
	if res.MatchedCount == 0 {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

func (s *MongoStore) Delete(ctx context.Context, tenantID, ruleID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": ruleID, "tenant_id": tenantID})
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, tenantID, ruleID string) (Rule, error) {
	var doc ruleDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": ruleID, "tenant_id": tenantID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, fmt.Errorf("failed to load rule: %w", err)
	}
	return decodeRule(doc)
}

func (s *MongoStore) List(ctx context.Context, tenantID string) ([]Rule, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer cur.Close(ctx)

	var docs []ruleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	out := make([]Rule, 0, len(docs))
	for _, doc := range docs {
		rule, err := decodeRule(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func encodeRule(rule Rule) (ruleDoc, error) {
	data, err := json.Marshal(rule)
	if err != nil {
		return ruleDoc{}, fmt.Errorf("failed to encode rule: %w", err)
	}
	return ruleDoc{
		ID:        rule.ID,
		TenantID:  rule.TenantID,
		Version:   rule.Version,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
		Data:      data,
	}, nil
}

func decodeRule(doc ruleDoc) (Rule, error) {
	var rule Rule
	if err := json.Unmarshal(doc.Data, &rule); err != nil {
		return Rule{}, fmt.Errorf("failed to decode rule %s: %w", doc.ID, err)
	}
	return rule, nil
}
