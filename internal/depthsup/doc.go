// Package depthsup augments a radiance field scene model with depth
// supervision.
//
// A Model wraps a base SceneModel and extends its per-step outputs, metrics
// and losses with a depth term: a sigma schedule supplies the assumed
// supervision uncertainty, a loss selector dispatches on the configured
// formulation from the losses package, and a blender folds the scaled result
// into the base loss map. A separate evaluation path renders side-by-side
// depth colormaps and masked MSE metrics against one or more ground truth
// depth images.
//
// The package owns no rendering pipeline, optimiser or data loading; those
// belong to the surrounding training framework and reach this package only
// through the SceneModel interface and the per-step batch values.
package depthsup
