// Package mongostore implements goGuard.AccountStore on a MongoDB collection.
//
// Accounts are keyed by the application id in the "id" field; both "id" and
// "email" carry unique indexes created by [Store.EnsureIndexes]. Conditional
// updates and backup-code consumption are single UpdateOne calls, so they
// stay correct with several engine instances sharing one database.
package mongostore
