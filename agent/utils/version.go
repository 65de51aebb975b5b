package utils

// Version of the module, updated by the release script.
const Version = "0.1.0"
