package constants

const (
	AppName        = "frp-clean"
	ConfigFileName = "config.yaml"
	LogFileName    = "clean.log"
)

// Marker files that classify a directory as a project root.
const (
	PubspecFile = "pubspec.yaml"
	CargoFile   = "Cargo.toml"
)

// Build artifacts per ecosystem, relative to the project root.
const (
	DartToolDir            = ".dart_tool"
	FlutterBuildDir        = "build"
	FlutterPluginsDepsFile = ".flutter-plugins-dependencies"
	CargoTargetDir         = "target"
)
