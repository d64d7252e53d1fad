// Package all registers every snapshot backend with the snapshot factory.
// Blank-import it from binaries that select the backend at runtime.
package all

import (
	_ "dataprep/internal/snapshot/mssql"
	_ "dataprep/internal/snapshot/postgres"
	_ "dataprep/internal/snapshot/sqlite"
)
