// Package mongo stores jobs in MongoDB through mongo-driver/v2.
//
// Jobs live in the "jobs" collection with their UUID as _id. Sequence
// numbers come from an atomic $inc on the "counters" collection. Claim is a
// single FindOneAndUpdate sorted by seq, which the server applies atomically
// to one document, so concurrent workers never receive the same job.
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	storage := mongo.NewQueueStorage(db)
//
// Integration tests run only when JOBKIT_TEST_MONGO_URL is set.
package mongo
