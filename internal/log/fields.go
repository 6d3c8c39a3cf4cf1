package log

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentTracker   = "tracker"
	ComponentStorage   = "storage"
	ComponentRegistry  = "registry"
	ComponentReconcile = "reconcile"
	ComponentImpexp    = "impexp"
	ComponentEvents    = "events"
	ComponentCache     = "cache"
)
