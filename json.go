package visionkit

import jsoniter "github.com/json-iterator/go"

// json is the codec used for service responses, cache records and CLI output.
var json = jsoniter.ConfigCompatibleWithStandardLibrary
