// Package models registriert alle unterstuetzten Architekturen
package models

import (
	_ "github.com/ollama/mlexport/model/models/mobilenetv2"
)
