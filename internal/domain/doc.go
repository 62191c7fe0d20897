// Package domain defines the core business types for the nuntius sending
// platform: campaigns, subscribers, segments, send records, and the
// resolved message an ESP transport actually ships.
//
// Types in this package are pure value objects with no behavior, no database
// dependencies, and no HTTP concerns. They are the shared language between
// the dispatcher, sender, tracking, webhook, and repository packages.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
