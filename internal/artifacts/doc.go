// Package artifacts writes pipeline outputs to disk. Every artifact for
// one experiment lands under a templated directory derived from the
// language, the subject label and the model set, with file names carrying
// a <subject>_<model>_ prefix so outputs from different experiments can
// share one output root without colliding.
package artifacts
