package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/realty/internal/models"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

// repositories implements store.Tx. The same value serves transactional and plain reads:
// the session travels in the context handed to each call.
type repositories struct {
	properties *propertyRepo
	inquiries  *inquiryRepo
	history    *historyRepo
	events     *eventRepo
}

func newRepositories(database *mongo.Database) *repositories {
	return &repositories{
		properties: &propertyRepo{coll: database.Collection(PropertiesCollection)},
		inquiries:  &inquiryRepo{coll: database.Collection(InquiriesCollection)},
		history:    &historyRepo{coll: database.Collection(HistoryCollection)},
		events: &eventRepo{
			coll:  database.Collection(EventsCollection),
			locks: database.Collection(AgentLocksCollection),
		},
	}
}

func (r *repositories) Properties() store.PropertyRepository { return r.properties }
func (r *repositories) Inquiries() store.InquiryRepository   { return r.inquiries }
func (r *repositories) History() store.HistoryRepository     { return r.history }
func (r *repositories) Events() store.EventRepository        { return r.events }

func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		PropertiesCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "reservation_type", Value: 1}, {Key: "reservation_expiry", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		InquiriesCollection: {
			{Keys: bson.D{{Key: "property_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "client_email", Value: 1}}},
			{Keys: bson.D{{Key: "client_phone", Value: 1}}},
			{Keys: bson.D{{Key: "assigned_to", Value: 1}}},
		},
		HistoryCollection: {
			{Keys: bson.D{{Key: "inquiry_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		EventsCollection: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start_time", Value: 1}}},
		},
	}
}

func findOne(ctx context.Context, coll *mongo.Collection, filter interface{}, out interface{}) error {
	err := coll.FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find in %s: %w", coll.Name(), err)
	}
	return nil
}

func replaceByID(ctx context.Context, coll *mongo.Collection, id utils.SixID, doc interface{}) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	results := []T{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", coll.Name(), err)
	}
	return results, nil
}

// --- Properties ---

type propertyRepo struct {
	coll *mongo.Collection
}

func (r *propertyRepo) Insert(ctx context.Context, p *models.Property) error {
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}
	return nil
}

func (r *propertyRepo) FindByID(ctx context.Context, id utils.SixID) (*models.Property, error) {
	var p models.Property
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *propertyRepo) Lock(ctx context.Context, id utils.SixID) (*models.Property, error) {
	var p models.Property
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"lock_seq": 1}}, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock property: %w", err)
	}
	return &p, nil
}

func (r *propertyRepo) Update(ctx context.Context, p *models.Property) error {
	return replaceByID(ctx, r.coll, p.ID, p)
}

func (r *propertyRepo) List(ctx context.Context, filter store.PropertyFilter) ([]models.Property, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.Type != "" {
		q["property_type"] = filter.Type
	}
	price := bson.M{}
	if filter.MinPrice != nil {
		price["$gte"] = *filter.MinPrice
	}
	if filter.MaxPrice != nil {
		price["$lte"] = *filter.MaxPrice
	}
	if len(price) > 0 {
		q["price"] = price
	}
	if filter.Location != "" {
		q["location"] = bson.M{"$regex": regexp.QuoteMeta(filter.Location), "$options": "i"}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findAll[models.Property](ctx, r.coll, q, opts)
}

func (r *propertyRepo) FindExpiredReservations(ctx context.Context, now time.Time) ([]utils.SixID, error) {
	q := bson.M{
		"status":             models.PropertyStatusReserved,
		"reservation_type":   models.ReservationDeposit,
		"reservation_expiry": bson.M{"$lt": now},
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "reservation_expiry", Value: 1}})
	docs, err := findAll[struct {
		ID utils.SixID `bson:"_id"`
	}](ctx, r.coll, q, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]utils.SixID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// --- Inquiries ---

type inquiryRepo struct {
	coll *mongo.Collection
}

func (r *inquiryRepo) Insert(ctx context.Context, inq *models.Inquiry) error {
	if _, err := r.coll.InsertOne(ctx, inq); err != nil {
		return fmt.Errorf("failed to insert inquiry: %w", err)
	}
	return nil
}

func (r *inquiryRepo) FindByID(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	var inq models.Inquiry
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &inq); err != nil {
		return nil, err
	}
	return &inq, nil
}

func (r *inquiryRepo) Update(ctx context.Context, inq *models.Inquiry) error {
	return replaceByID(ctx, r.coll, inq.ID, inq)
}

func (r *inquiryRepo) List(ctx context.Context, filter store.InquiryFilter) ([]models.Inquiry, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.PropertyID != nil {
		q["property_id"] = *filter.PropertyID
	}
	if filter.AssignedTo != nil {
		q["assigned_to"] = *filter.AssignedTo
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findAll[models.Inquiry](ctx, r.coll, q, opts)
}

func (r *inquiryRepo) FindActiveDuplicate(ctx context.Context, propertyID utils.SixID, email, phone string) (*models.Inquiry, error) {
	var contact bson.A
	if email != "" {
		contact = append(contact, bson.M{"client_email": email})
	}
	if phone != "" {
		contact = append(contact, bson.M{"client_phone": phone})
	}
	if len(contact) == 0 {
		return nil, nil
	}
	q := bson.M{
		"property_id": propertyID,
		"status":      bson.M{"$nin": bson.A{models.InquiryCancelled, models.InquiryExpired}},
		"$or":         contact,
	}
	var inq models.Inquiry
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := r.coll.FindOne(ctx, q, opts).Decode(&inq)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up duplicate inquiry: %w", err)
	}
	return &inq, nil
}

func (r *inquiryRepo) FindOpenSiblings(ctx context.Context, propertyID, excludeID utils.SixID) ([]models.Inquiry, error) {
	q := bson.M{
		"property_id": propertyID,
		"_id":         bson.M{"$ne": excludeID},
		"status":      bson.M{"$nin": bson.A{models.InquirySold, models.InquiryCancelled, models.InquiryExpired}},
	}
	return findAll[models.Inquiry](ctx, r.coll, q)
}

func (r *inquiryRepo) SetStatusMany(ctx context.Context, ids []utils.SixID, status models.InquiryStatus, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"status": status, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to update inquiry statuses: %w", err)
	}
	return nil
}

// --- History ---

type historyRepo struct {
	coll *mongo.Collection
}

func (r *historyRepo) Append(ctx context.Context, entries ...*models.InquiryStatusHistory) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]interface{}, len(entries))
	for i, e := range entries {
		docs[i] = e
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

func (r *historyRepo) ListByInquiry(ctx context.Context, inquiryID utils.SixID) ([]models.InquiryStatusHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findAll[models.InquiryStatusHistory](ctx, r.coll, bson.M{"inquiry_id": inquiryID}, opts)
}

// --- Calendar events ---

type eventRepo struct {
	coll  *mongo.Collection
	locks *mongo.Collection
}

func (r *eventRepo) Insert(ctx context.Context, ev *models.CalendarEvent) error {
	if _, err := r.coll.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("failed to insert calendar event: %w", err)
	}
	return nil
}

func (r *eventRepo) FindByID(ctx context.Context, id utils.SixID) (*models.CalendarEvent, error) {
	var ev models.CalendarEvent
	if err := findOne(ctx, r.coll, bson.M{"_id": id}, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepo) Update(ctx context.Context, ev *models.CalendarEvent) error {
	return replaceByID(ctx, r.coll, ev.ID, ev)
}

func (r *eventRepo) Delete(ctx context.Context, id utils.SixID) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *eventRepo) List(ctx context.Context, filter store.EventFilter) ([]models.CalendarEvent, error) {
	q := bson.M{}
	if filter.AgentID != nil {
		q["agent_id"] = *filter.AgentID
	}
	if filter.From != nil {
		q["start_time"] = bson.M{"$gte": *filter.From}
	}
	if filter.To != nil {
		q["end_time"] = bson.M{"$lte": *filter.To}
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.Type != "" {
		q["event_type"] = filter.Type
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	return findAll[models.CalendarEvent](ctx, r.coll, q, opts)
}

func (r *eventRepo) FindScheduledNear(ctx context.Context, agentID utils.SixID, windowStart, windowEnd time.Time, excludeID *utils.SixID) ([]models.CalendarEvent, error) {
	q := bson.M{
		"agent_id": agentID,
		"status":   models.EventScheduled,
		"$or": bson.A{
			bson.M{"start_time": bson.M{"$lt": windowEnd}, "end_time": bson.M{"$gt": windowStart}},
			bson.M{"start_time": bson.M{"$gte": windowStart, "$lt": windowEnd}},
		},
	}
	if excludeID != nil {
		q["_id"] = bson.M{"$ne": *excludeID}
	}
	return findAll[models.CalendarEvent](ctx, r.coll, q)
}

func (r *eventRepo) LockAgent(ctx context.Context, agentID utils.SixID) error {
	_, err := r.locks.UpdateOne(ctx,
		bson.M{"_id": agentID},
		bson.M{"$inc": bson.M{"lock_seq": 1}, "$set": bson.M{"locked_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to lock agent calendar: %w", err)
	}
	return nil
}
