// Package mail provides outbound delivery implementations for the engine's
// Mailer collaborator: an SMTP sender for production and a log sender for
// development and tests.
//
// Template content lives here, not in the engine. The engine only selects a
// template name per flow branch and supplies the data map; everything about
// wording, headers, and transport is this package's concern.
package mail
