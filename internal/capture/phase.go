package capture

type Phase string

const (
	PhaseOrientationHint    Phase = "orientation_hint"
	PhaseModeSelect         Phase = "mode_select"
	PhaseBackModeSelect     Phase = "back_mode_select"
	PhaseScanSharedBack     Phase = "scan_shared_back"
	PhaseScanFront          Phase = "scan_front"
	PhaseFlipHint           Phase = "flip_hint"
	PhaseScanBackIndividual Phase = "scan_back_individual"
	PhaseImporting          Phase = "importing"
	PhaseDone               Phase = "done"
)

type ScanMode string

const (
	ScanModeUnset     ScanMode = ""
	ScanModeFrontOnly ScanMode = "front_only"
	ScanModeFrontBack ScanMode = "front_back"
)

type BackMode string

const (
	BackModeUnset      BackMode = ""
	BackModeShared     BackMode = "shared"
	BackModeIndividual BackMode = "individual"
)

type phaseSpec struct {
	requiresCamera bool
	instruction    string
}

var phases = map[Phase]phaseSpec{
	PhaseOrientationHint: {
		instruction: "Hold your phone upright in portrait orientation, then continue.",
	},
	PhaseModeSelect: {
		instruction: "Choose whether to scan card fronts only or fronts and backs.",
	},
	PhaseBackModeSelect: {
		instruction: "Do all cards share one back design, or does each card have its own back?",
	},
	PhaseScanSharedBack: {
		requiresCamera: true,
		instruction:    "Place the shared card back inside the frame.",
	},
	PhaseScanFront: {
		requiresCamera: true,
		instruction:    "Place the card front inside the frame.",
	},
	PhaseFlipHint: {
		instruction: "Front captured. Flip the card over, then continue.",
	},
	PhaseScanBackIndividual: {
		requiresCamera: true,
		instruction:    "Place the back of the same card inside the frame.",
	},
	PhaseImporting: {
		instruction: "Uploading card...",
	},
	PhaseDone: {
		instruction: "Scanning finished.",
	},
}

// RequiresCamera reports whether the acquisition loop runs while in p.
func (p Phase) RequiresCamera() bool {
	return phases[p].requiresCamera
}

func (p Phase) Instruction() string {
	return phases[p].instruction
}

// PostSelection reports whether the user has finished choosing a scan mode.
func (p Phase) PostSelection() bool {
	switch p {
	case PhaseOrientationHint, PhaseModeSelect, PhaseBackModeSelect:
		return false
	}
	return true
}

func (m ScanMode) Valid() bool {
	return m == ScanModeFrontOnly || m == ScanModeFrontBack
}

func (m BackMode) Valid() bool {
	return m == BackModeShared || m == BackModeIndividual
}
