// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go types and their mapping onto
relational tables. As much as possible, reflection code is limited to this
package. It derives column names from field names, caches the per type mapping
in a Registry, reads field values for use as query parameters and locates scan
targets for result columns.
*/
package typeinfo
