package utils

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON is the shared codec configuration for every API payload.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary
