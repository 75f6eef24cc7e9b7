// Package mongo implements store.Store on MongoDB with the official v2
// driver. Version guards are part of the ReplaceOne and DeleteOne filters;
// exclusive scope leases are documents keyed by process instance and taken
// with a conditional upsert.
//
// The caller owns the client lifecycle:
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	s := mongostore.New(client.Database("asyncexec"))
//	s.Migrate(ctx)
package mongo
