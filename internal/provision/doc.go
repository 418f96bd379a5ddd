// Package provision installs the Node.js runtime and the n8n bundle under
// the application data root and launches n8n through the supervisor.
//
// Layout under the data root:
//
//	runtime/                   extracted Node.js release
//	n8n-core/                  extracted n8n bundle
//	n8n-data/                  N8N_USER_FOLDER
//	n8n-core-<platform>.zip    kept bundle, reverified on each setup
//	.install/                  install locks and attempt journal
//
// The filesystem is the source of truth: an asset is installed when its
// executable exists. Setup pipelines are idempotent and safe to rerun
// after any failure.
package provision
