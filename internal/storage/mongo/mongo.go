// Package mongo stores the ledger, settings and preferences as MongoDB documents.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bilancio/internal/core"
	"bilancio/internal/ports"
)

const (
	transactionsCollection = "transactions"
	settingsCollection     = "user_settings"
	preferencesCollection  = "budget_preferences"
	recurringCollection    = "recurring_transactions"
	countersCollection     = "counters"
)

type transactionDoc struct {
	ID            string               `bson:"_id"`
	UserID        string               `bson:"user_id"`
	Seq           int64                `bson:"seq"`
	Description   string               `bson:"description"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Date          string               `bson:"date"`
	ControlPeriod *string              `bson:"control_period"`
	Category      string               `bson:"category"`
	Account       string               `bson:"account"`
}

type settingsDoc struct {
	UserID        string    `bson:"_id"`
	DefaultPeriod *string   `bson:"default_period"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type preferenceDoc struct {
	ID         string               `bson:"_id"`
	UserID     string               `bson:"user_id"`
	Seq        int64                `bson:"seq"`
	Name       string               `bson:"name"`
	Percentage primitive.Decimal128 `bson:"percentage"`
	Categories []string             `bson:"categories"`
}

type recurringDoc struct {
	ID           string               `bson:"_id"`
	UserID       string               `bson:"user_id"`
	Seq          int64                `bson:"seq"`
	StartDate    string               `bson:"start_date"`
	EndDate      *string              `bson:"end_date"`
	Every        string               `bson:"every"`
	Description  string               `bson:"description"`
	Amount       primitive.Decimal128 `bson:"amount"`
	Category     string               `bson:"category"`
	Account      string               `bson:"account"`
	LastExecuted *time.Time           `bson:"last_executed"`
}

type Repository struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ ports.Store = (*Repository)(nil)

// Connect establishes a connection to MongoDB and prepares the indexes.
func Connect(ctx context.Context, uri, database string) (*Repository, error) {
	slog.DebugContext(ctx, "Attempting to connect to MongoDB", "database", database)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	r := &Repository{client: client, db: client.Database(database)}
	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	slog.InfoContext(ctx, "Successfully established connection to MongoDB")
	return r, nil
}

func (r *Repository) ensureIndexes(ctx context.Context) error {
	byUserSeq := mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "seq", Value: 1}}}
	for _, name := range []string{transactionsCollection, preferencesCollection, recurringCollection} {
		if _, err := r.db.Collection(name).Indexes().CreateOne(ctx, byUserSeq); err != nil {
			return fmt.Errorf("create index on %s: %w", name, err)
		}
	}
	return nil
}

func (r *Repository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// nextSeq hands out a per-user, per-collection arrival counter.
func (r *Repository) nextSeq(ctx context.Context, collection, userID string) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := r.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": collection + ":" + userID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", collection, err)
	}
	return out.Seq, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	for _, name := range []string{transactionsCollection, preferencesCollection, recurringCollection} {
		values, err := r.db.Collection(name).Distinct(ctx, "user_id", bson.D{})
		if err != nil {
			return nil, fmt.Errorf("distinct users in %s: %w", name, err)
		}
		for _, v := range values {
			if s, ok := v.(string); ok {
				seen[s] = true
			}
		}
	}
	ids, err := r.db.Collection(settingsCollection).Distinct(ctx, "_id", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("distinct users in settings: %w", err)
	}
	for _, v := range ids {
		if s, ok := v.(string); ok {
			seen[s] = true
		}
	}

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	slices.Sort(users)
	return users, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

func datePtr(d *core.Date) *string {
	if d == nil || d.IsEmpty() {
		return nil
	}
	s := d.String()
	return &s
}

func parseDatePtr(s *string) (*core.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := core.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID string, page ports.Page) ([]core.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}).SetSkip(int64(max(page.Offset, 0)))
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	cur, err := r.db.Collection(transactionsCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}

	txs := make([]core.Transaction, 0, len(docs))
	for _, d := range docs {
		tx := core.Transaction{
			ID:          d.ID,
			Description: d.Description,
			Category:    core.Category(d.Category),
			Account:     core.Account(d.Account),
		}
		if tx.Amount, err = fromDecimal128(d.Amount); err != nil {
			return nil, err
		}
		if tx.Date, err = core.ParseDate(d.Date); err != nil {
			return nil, err
		}
		if tx.ControlPeriod, err = parseDatePtr(d.ControlPeriod); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r *Repository) AddTransaction(ctx context.Context, userID string, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	amount, err := toDecimal128(core.RoundCurrency(tx.Amount))
	if err != nil {
		return core.Transaction{}, err
	}
	seq, err := r.nextSeq(ctx, transactionsCollection, userID)
	if err != nil {
		return core.Transaction{}, err
	}
	_, err = r.db.Collection(transactionsCollection).InsertOne(ctx, transactionDoc{
		ID:            tx.ID,
		UserID:        userID,
		Seq:           seq,
		Description:   tx.Description,
		Amount:        amount,
		Date:          tx.Date.String(),
		ControlPeriod: datePtr(tx.ControlPeriod),
		Category:      string(tx.Category),
		Account:       string(tx.Account),
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("failed to perform InsertOne: %w", err)
	}
	return tx, nil
}

func (r *Repository) DefaultPeriod(ctx context.Context, userID string) (*core.Date, error) {
	var doc settingsDoc
	err := r.db.Collection(settingsCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default period: %w", err)
	}
	return parseDatePtr(doc.DefaultPeriod)
}

func (r *Repository) SetDefaultPeriod(ctx context.Context, userID string, period *core.Date) error {
	_, err := r.db.Collection(settingsCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"default_period": datePtr(period), "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set default period: %w", err)
	}
	return nil
}

func (d preferenceDoc) toCore() (core.BudgetPreference, error) {
	pct, err := fromDecimal128(d.Percentage)
	if err != nil {
		return core.BudgetPreference{}, err
	}
	cats := make([]core.Category, 0, len(d.Categories))
	for _, c := range d.Categories {
		cats = append(cats, core.Category(c))
	}
	return core.BudgetPreference{ID: d.ID, Name: d.Name, Percentage: pct, Categories: cats}, nil
}

func categoryStrings(cats []core.Category) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, string(c))
	}
	return out
}

func (r *Repository) ListPreferences(ctx context.Context, userID string) ([]core.BudgetPreference, error) {
	cur, err := r.db.Collection(preferencesCollection).Find(ctx,
		bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find preferences: %w", err)
	}
	var docs []preferenceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	prefs := make([]core.BudgetPreference, 0, len(docs))
	for _, d := range docs {
		p, err := d.toCore()
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, nil
}

func (r *Repository) GetPreference(ctx context.Context, userID, id string) (core.BudgetPreference, error) {
	var doc preferenceDoc
	err := r.db.Collection(preferencesCollection).FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.BudgetPreference{}, ports.ErrNotFound
	}
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("get preference: %w", err)
	}
	return doc.toCore()
}

func (r *Repository) CreatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	pct, err := toDecimal128(p.Percentage)
	if err != nil {
		return core.BudgetPreference{}, err
	}
	seq, err := r.nextSeq(ctx, preferencesCollection, userID)
	if err != nil {
		return core.BudgetPreference{}, err
	}
	_, err = r.db.Collection(preferencesCollection).InsertOne(ctx, preferenceDoc{
		ID:         p.ID,
		UserID:     userID,
		Seq:        seq,
		Name:       p.Name,
		Percentage: pct,
		Categories: categoryStrings(p.Categories),
	})
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("failed to perform InsertOne: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	pct, err := toDecimal128(p.Percentage)
	if err != nil {
		return core.BudgetPreference{}, err
	}
	res, err := r.db.Collection(preferencesCollection).UpdateOne(ctx,
		bson.M{"_id": p.ID, "user_id": userID},
		bson.M{"$set": bson.M{"name": p.Name, "percentage": pct, "categories": categoryStrings(p.Categories)}})
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("update preference: %w", err)
	}
	if res.MatchedCount == 0 {
		return core.BudgetPreference{}, ports.ErrNotFound
	}
	return p, nil
}

func (r *Repository) DeletePreference(ctx context.Context, userID, id string) error {
	res, err := r.db.Collection(preferencesCollection).DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	if res.DeletedCount == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error) {
	cur, err := r.db.Collection(recurringCollection).Find(ctx,
		bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find recurring: %w", err)
	}
	var docs []recurringDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode recurring: %w", err)
	}

	list := make([]core.RecurringTransaction, 0, len(docs))
	for _, d := range docs {
		rt := core.RecurringTransaction{
			ID:          d.ID,
			Every:       core.RepetitionTypes(d.Every),
			Description: d.Description,
			Category:    core.Category(d.Category),
			Account:     core.Account(d.Account),
		}
		if rt.StartDate, err = core.ParseDate(d.StartDate); err != nil {
			return nil, err
		}
		end, err := parseDatePtr(d.EndDate)
		if err != nil {
			return nil, err
		}
		if end != nil {
			rt.EndDate = *end
		}
		if rt.Amount, err = fromDecimal128(d.Amount); err != nil {
			return nil, err
		}
		if d.LastExecuted != nil {
			rt.LastExecuted = d.LastExecuted.UTC()
		}
		list = append(list, rt)
	}
	return list, nil
}

func (r *Repository) CreateRecurring(ctx context.Context, userID string, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	amount, err := toDecimal128(core.RoundCurrency(rt.Amount))
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	seq, err := r.nextSeq(ctx, recurringCollection, userID)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	doc := recurringDoc{
		ID:          rt.ID,
		UserID:      userID,
		Seq:         seq,
		StartDate:   rt.StartDate.String(),
		EndDate:     datePtr(&rt.EndDate),
		Every:       string(rt.Every),
		Description: rt.Description,
		Amount:      amount,
		Category:    string(rt.Category),
		Account:     string(rt.Account),
	}
	if !rt.LastExecuted.IsZero() {
		doc.LastExecuted = &rt.LastExecuted
	}
	if _, err := r.db.Collection(recurringCollection).InsertOne(ctx, doc); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("failed to perform InsertOne: %w", err)
	}
	return rt, nil
}

func (r *Repository) DeleteRecurring(ctx context.Context, userID, id string) error {
	res, err := r.db.Collection(recurringCollection).DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("delete recurring: %w", err)
	}
	if res.DeletedCount == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkRecurringExecuted(ctx context.Context, userID, id string, at time.Time) error {
	res, err := r.db.Collection(recurringCollection).UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"last_executed": at.UTC()}})
	if err != nil {
		return fmt.Errorf("mark recurring executed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ports.ErrNotFound
	}
	return nil
}
