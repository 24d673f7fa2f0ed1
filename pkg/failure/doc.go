// Package failure defines the error taxonomy shared by task graphs and job queues.
//
// Four classes of errors are recognised:
//
//   - Configuration errors (ErrConfiguration) signal invalid input or setup. They are
//     fatal and never retried.
//   - Aborted errors (ErrAborted) are the terminal outcome of cooperative cancellation.
//   - Terminal errors are produced by wrapping any error with Terminal. Job servers
//     persist them as failed without further attempts.
//   - Every other error is transient and is retried until the job runs out of attempts.
//
// Classification is done with errors.Is, so wrapped errors keep their class:
//
//	if err := validate(in); err != nil {
//	    return nil, fmt.Errorf("%w: %w", failure.ErrConfiguration, err)
//	}
//
//	switch failure.Classify(err) {
//	case failure.KindTransient:
//	    // retry
//	default:
//	    // persist as failed
//	}
package failure
