package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const paymentsCollection = "payments"

// MongoStore keeps payment requests as documents in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// paymentDoc is the stored document. Decimal amounts are kept as strings so
// no precision is lost to floating point.
type paymentDoc struct {
	Reference      string     `bson:"reference"`
	Recipient      string     `bson:"recipient"`
	Token          string     `bson:"token"`
	SplToken       string     `bson:"splToken,omitempty"`
	Amount         string     `bson:"amount"`
	Label          string     `bson:"label,omitempty"`
	Message        string     `bson:"message,omitempty"`
	Memo           string     `bson:"memo,omitempty"`
	PaymentLink    string     `bson:"paymentLink,omitempty"`
	FirstName      string     `bson:"firstName"`
	LastName       string     `bson:"lastName"`
	Email          string     `bson:"email"`
	PhoneNumber    string     `bson:"phoneNumber,omitempty"`
	IP             string     `bson:"ip,omitempty"`
	AddressLine1   string     `bson:"addressLine1,omitempty"`
	AddressLine2   string     `bson:"addressLine2,omitempty"`
	City           string     `bson:"city,omitempty"`
	State          string     `bson:"state,omitempty"`
	ZipCode        string     `bson:"zipCode,omitempty"`
	Country        string     `bson:"country,omitempty"`
	ShippingMethod string     `bson:"shippingMethod,omitempty"`
	ShippingCost   string     `bson:"shippingCost,omitempty"`
	CartTotal      string     `bson:"cartTotal"`
	Status         Status     `bson:"status"`
	Signature      string     `bson:"signature,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt"`
	VerifiedAt     *time.Time `bson:"verifiedAt,omitempty"`
}

func toDoc(p *PaymentRequest) paymentDoc {
	d := paymentDoc{
		Reference:      p.Reference,
		Recipient:      p.Recipient,
		Token:          p.Token,
		SplToken:       p.SplToken,
		Amount:         p.Amount.String(),
		Label:          p.Label,
		Message:        p.Message,
		Memo:           p.Memo,
		PaymentLink:    p.PaymentLink,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		PhoneNumber:    p.PhoneNumber,
		IP:             p.IP,
		AddressLine1:   p.AddressLine1,
		AddressLine2:   p.AddressLine2,
		City:           p.City,
		State:          p.State,
		ZipCode:        p.ZipCode,
		Country:        p.Country,
		ShippingMethod: p.ShippingMethod,
		CartTotal:      p.CartTotal.String(),
		Status:         p.Status,
		Signature:      p.Signature,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		VerifiedAt:     p.VerifiedAt,
	}
	if p.HasShipping() {
		d.ShippingCost = p.ShippingCost.String()
	}
	return d
}

func (d paymentDoc) toRequest() (*PaymentRequest, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("payment %s: bad amount %q: %w", d.Reference, d.Amount, err)
	}
	cartTotal, err := decimal.NewFromString(d.CartTotal)
	if err != nil {
		return nil, fmt.Errorf("payment %s: bad cart total %q: %w", d.Reference, d.CartTotal, err)
	}
	var shipping decimal.Decimal
	if d.ShippingCost != "" {
		if shipping, err = decimal.NewFromString(d.ShippingCost); err != nil {
			return nil, fmt.Errorf("payment %s: bad shipping cost %q: %w", d.Reference, d.ShippingCost, err)
		}
	}

	return &PaymentRequest{
		Reference:      d.Reference,
		Recipient:      d.Recipient,
		Token:          d.Token,
		SplToken:       d.SplToken,
		Amount:         amount,
		Label:          d.Label,
		Message:        d.Message,
		Memo:           d.Memo,
		PaymentLink:    d.PaymentLink,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		Email:          d.Email,
		PhoneNumber:    d.PhoneNumber,
		IP:             d.IP,
		AddressLine1:   d.AddressLine1,
		AddressLine2:   d.AddressLine2,
		City:           d.City,
		State:          d.State,
		ZipCode:        d.ZipCode,
		Country:        d.Country,
		ShippingMethod: d.ShippingMethod,
		ShippingCost:   shipping,
		CartTotal:      cartTotal,
		Status:         d.Status,
		Signature:      d.Signature,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		VerifiedAt:     d.VerifiedAt,
	}, nil
}

// ConnectMongo connects to uri and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(paymentsCollection),
	}
}

// EnsureIndexes creates the unique reference index and the (status, createdAt)
// index used by the expiration and verification scans.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context, p *PaymentRequest) error {
	_, err := s.coll.InsertOne(ctx, toDoc(p))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateReference
	}
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

func (s *MongoStore) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"reference": reference}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count reference: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) FindByReference(ctx context.Context, reference string) (*PaymentRequest, error) {
	var d paymentDoc
	err := s.coll.FindOne(ctx, bson.M{"reference": reference}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment request: %w", err)
	}
	return d.toRequest()
}

func (s *MongoStore) ListByStatus(ctx context.Context, status Status, limit int) ([]PaymentRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s payment requests: %w", status, err)
	}
	defer cur.Close(ctx)

	var docs []paymentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode payment requests: %w", err)
	}

	list := make([]PaymentRequest, 0, len(docs))
	for _, d := range docs {
		p, err := d.toRequest()
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, nil
}

func (s *MongoStore) ExpirePending(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"status": StatusPending, "createdAt": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": StatusCancelled, "updatedAt": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("expire pending payment requests: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) MarkVerified(ctx context.Context, reference, signature string, at time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"reference": reference, "status": StatusPending},
		bson.M{"$set": bson.M{
			"status":     StatusVerified,
			"signature":  signature,
			"verifiedAt": at,
			"updatedAt":  at,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("mark %s verified: %w", reference, err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
