package core

import (
	"kadai-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("kadai.lib.scrapers.moodle.core")
