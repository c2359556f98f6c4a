package model

// DeploymentRequest asks the target environment to build and deploy a
// provisioned repository into a namespace. Acceptance of the request does
// not mean the deployment itself succeeded.
type DeploymentRequest struct {
	Repository string `json:"repository"`
	CloneURL   string `json:"cloneUrl"`
	Namespace  string `json:"namespace"`
}

// PrepareInput describes the template a projectile should be materialized
// from. Mission and Booster name entries in the external template catalog.
type PrepareInput struct {
	Mission     string
	Booster     string
	ProjectName string
}
