package types

// Version is the catapult release version, overridden at build time
var Version = "dev"

// ServiceName identifies this service in health responses and logs
const ServiceName = "catapult"
