// Package models defines the core domain models of the orchestration control plane.
package models

import "time"

// Environment is the deployment tier a pipeline or dataset belongs to.
type Environment string

const (
	EnvironmentDev  Environment = "dev"
	EnvironmentQA   Environment = "qa"
	EnvironmentUAT  Environment = "uat"
	EnvironmentProd Environment = "prod"
)

// Environments lists the closed set of environments.
var Environments = []Environment{EnvironmentDev, EnvironmentQA, EnvironmentUAT, EnvironmentProd}

// IsValid reports whether e is one of the known environments.
func (e Environment) IsValid() bool {
	for _, env := range Environments {
		if e == env {
			return true
		}
	}

	return false
}

// Layer is a medallion architecture tier.
type Layer string

const (
	LayerBronze Layer = "bronze" // raw
	LayerSilver Layer = "silver" // cleaned and conformed
	LayerGold   Layer = "gold"   // business aggregates
)

// Layers lists the closed set of layers in promotion order.
var Layers = []Layer{LayerBronze, LayerSilver, LayerGold}

// IsValid reports whether l is one of the known layers.
func (l Layer) IsValid() bool {
	for _, layer := range Layers {
		if l == layer {
			return true
		}
	}

	return false
}

// Pipeline is a named unit of orchestrated work.
type Pipeline struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"                  validate:"required,min=3"`
	Description string      `json:"description,omitempty"`
	Team        string      `json:"team"                  validate:"required"`
	Environment Environment `json:"environment"           validate:"required,oneof=dev qa uat prod"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`

	// NextRunAt is derived from the pipeline's scheduled triggers and never persisted.
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}
