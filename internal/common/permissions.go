package common

// File permission constants shared across the application.
const (
	// FilePermissionSecure is for sensitive files: config, stored
	// credentials, run history.
	FilePermissionSecure = 0600

	// FilePermissionNormal is for non-sensitive files such as staged
	// exports and converted artifacts.
	FilePermissionNormal = 0644

	// DirPermissionSecure is for directories holding sensitive files
	// (~/.retflow and its subdirectories).
	DirPermissionSecure = 0700

	// DirPermissionNormal is for working directories.
	DirPermissionNormal = 0755
)
