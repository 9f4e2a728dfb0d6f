package hue

import "errors"

// Domain errors for the Hue bridge package.
var (
	// ErrMissingCredentials is returned when an operation requires the
	// bridge host and API username but one of them is not configured.
	ErrMissingCredentials = errors.New("hue: bridge host and username are required")

	// ErrConnectionRefused is returned when the bridge actively refuses
	// the TCP connection.
	ErrConnectionRefused = errors.New("hue: bridge refused the connection")

	// ErrConnectionReset is returned when the bridge resets the
	// connection mid-request.
	ErrConnectionReset = errors.New("hue: connection reset by bridge")

	// ErrRequestTimeout is returned when a bridge request exceeds the
	// client timeout.
	ErrRequestTimeout = errors.New("hue: bridge request timed out")

	// ErrBridgeResponse is returned when the bridge answers with its own
	// error payload instead of the requested resource.
	ErrBridgeResponse = errors.New("hue: bridge reported an error")

	// ErrInvalidResponse is returned when a bridge response cannot be
	// interpreted (non-JSON, or the wrong shape for the endpoint).
	ErrInvalidResponse = errors.New("hue: invalid bridge response")

	// ErrSyncTerminated is returned when polling gives up after the
	// transport retry budget is exhausted.
	ErrSyncTerminated = errors.New("hue: sync terminated after repeated transport failures")

	// ErrInvalidSceneType is returned when a scene trigger resolves to a
	// scene type with no known command mapping.
	ErrInvalidSceneType = errors.New("hue: unsupported scene type")

	// ErrInvalidCommand is returned when a user write cannot be parsed
	// into a bridge command.
	ErrInvalidCommand = errors.New("hue: malformed command payload")

	// ErrUnknownAppliance is returned when a written path resolves to no
	// registered appliance.
	ErrUnknownAppliance = errors.New("hue: no appliance registered for path")

	// ErrReadOnlyChannel is returned for writes to channels without a
	// command contract (sensors, config).
	ErrReadOnlyChannel = errors.New("hue: channel is read-only")
)
