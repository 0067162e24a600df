package gcs2

import "fmt"

// ErrMap maps GCS2 error codes to friendly strings.  The full table in PI's
// documentation runs to several hundred entries; this is the subset a
// hexapod (C-887 family) can actually emit.
var ErrMap = map[int]string{
	0:   "No Error",
	1:   "Parameter syntax error",
	2:   "Unknown command",
	3:   "Command length out of limits or command buffer overrun",
	5:   "Unallowable move attempted on unreferenced axis, or move attempted with servo off",
	7:   "Position out of limits",
	8:   "Velocity out of limits",
	9:   "Attempt to set pivot point while U, V and W not all 0",
	10:  "Controller was stopped by command",
	13:  "Parameter for NAV out of range",
	15:  "Invalid axis identifier",
	17:  "Parameter out of range",
	23:  "Illegal axis",
	24:  "Incorrect number of parameters",
	25:  "Invalid floating point number",
	26:  "Parameter missing",
	31:  "Axis has no reference sensor",
	32:  "Axis has no limit switch",
	34:  "Command not allowed for selected stage(s)",
	45:  "Referencing failed",
	46:  "OPM (Optical Power Meter) missing",
	49:  "Move to limit switch failed",
	50:  "Attempt to reference axis with referencing disabled",
	53:  "MOV! motion still in progress",
	54:  "Unknown parameter",
	63:  "Initialization still in progress",
	64:  "Parameter is read-only",
	200: "No stage connected to axis",
	210: "Illegal file name (must be 8-0 format)",
	214: "Position calculations failed",
	215: "The connection between controller and stage may be broken",
	216: "The connected stage has driven into a limit switch, call CLR to resume operation",
	217: "Strut test command failed because of an unexpected strut stop",
	218: "Position can be estimated only while MOV! is running",
	306: "Error on I2C bus",
	307: "Timeout while receiving command",
	308: "A lengthy operation has not finished in the expected time",
	333: "Internal hardware error",
	555: "BasMac: unknown controller error",
	601: "not enough memory",
	602: "hardware voltage error",
	603: "hardware temperature out of range",
}

// Status encapsulates a status (error) code from a PI controller
type Status struct {
	code int
}

// Err converts an error code to something that implements the error
// interface; code 0 ("No Error") maps to nil
func Err(code int) error {
	if code == 0 {
		return nil
	}
	return Status{code}
}

// Code returns the raw controller error code
func (e Status) Code() int {
	return e.code
}

func (e Status) Error() string {
	if s, ok := ErrMap[e.code]; ok {
		return fmt.Sprintf("%d - %s", e.code, s)
	}
	return fmt.Sprintf("%d - UNKNOWN ERROR CODE", e.code)
}
