package runtime

// Deterministic names and labels for ownership and drift detection.
// Observation, teardown and pruning only ever touch resources carrying
// the owner label.

const (
	LabelOwner       = "stackup.owner" // constant: "stackup"
	LabelProject     = "stackup.project"
	LabelService     = "stackup.service"
	LabelFingerprint = "stackup.fingerprint"
	LabelRevision    = "stackup.revision"

	OwnerValue = "stackup"
)

// ContainerName returns the deterministic container name for a service.
func ContainerName(project, service string) string {
	return project + "-" + service
}

// NetworkName scopes a manifest network name to the project so stacks on
// the same daemon never collide.
func NetworkName(project, name string) string {
	return project + "-" + name
}

// VolumeName scopes a manifest volume name to the project.
func VolumeName(project, name string) string {
	return project + "-" + name
}

// StackLabels is the label set for project-scoped resources (networks,
// volumes). Revision may be empty when the manifest is not in a git tree.
func StackLabels(project, revision string) map[string]string {
	lbls := map[string]string{
		LabelOwner:   OwnerValue,
		LabelProject: project,
	}
	if revision != "" {
		lbls[LabelRevision] = revision
	}
	return lbls
}

// ServiceLabels extends StackLabels with the service identity and its
// configuration fingerprint.
func ServiceLabels(project, service, fingerprint, revision string) map[string]string {
	lbls := StackLabels(project, revision)
	lbls[LabelService] = service
	if fingerprint != "" {
		lbls[LabelFingerprint] = fingerprint
	}
	return lbls
}
