package kinematics

// CoreXZKinematics implements the contract for CoreXZ machines: the same
// coupled-drive arrangement as CoreXY applied to the XZ plane, with Y as an
// independent drive. A = X + Z, C = X - Z.
type CoreXZKinematics struct {
	base
}

// NewCoreXZ creates a CoreXZ kinematics instance.
func NewCoreXZ() *CoreXZKinematics {
	return &CoreXZKinematics{base: newBase(CoreXZKind, LinearMotion)}
}

// GetName returns the geometry name.
func (k *CoreXZKinematics) GetName(forStatusReport bool) string {
	if forStatusReport {
		return "coreXZ"
	}
	return "CoreXZ"
}

// CartesianToMotorSteps maps X and Z onto the coupled A and C drives.
func (k *CoreXZKinematics) CartesianToMotorSteps(machinePos, stepsPerUnit []float64, numAxes int, motorPos []int32) error {
	motorPos[XAxis] = stepRound((machinePos[XAxis] + machinePos[ZAxis]) * stepsPerUnit[XAxis])
	motorPos[YAxis] = stepRound(machinePos[YAxis] * stepsPerUnit[YAxis])
	motorPos[ZAxis] = stepRound((machinePos[XAxis] - machinePos[ZAxis]) * stepsPerUnit[ZAxis])
	passThroughSteps(machinePos, stepsPerUnit, ZAxis+1, numAxes, motorPos)
	return nil
}

// MotorStepsToCartesian recovers X = (A+C)/2 and Z = (A-C)/2.
func (k *CoreXZKinematics) MotorStepsToCartesian(motorPos []int32, stepsPerUnit []float64, numDrives int, machinePos []float64) {
	a := float64(motorPos[XAxis]) / stepsPerUnit[XAxis]
	c := float64(motorPos[ZAxis]) / stepsPerUnit[ZAxis]
	machinePos[XAxis] = (a + c) / 2.0
	machinePos[YAxis] = float64(motorPos[YAxis]) / stepsPerUnit[YAxis]
	machinePos[ZAxis] = (a - c) / 2.0
	passThroughCartesian(motorPos, stepsPerUnit, ZAxis+1, numDrives, machinePos)
}

// MotorFactor reports each coupled drive's share of a unit direction vector.
func (k *CoreXZKinematics) MotorFactor(drive int, directionVector []float64) float64 {
	switch drive {
	case XAxis:
		return directionVector[XAxis] + directionVector[ZAxis]
	case ZAxis:
		return directionVector[XAxis] - directionVector[ZAxis]
	}
	return directionVector[drive]
}

// ShowCoordinatesWhenNotHomed is true: the mapping is linear.
func (k *CoreXZKinematics) ShowCoordinatesWhenNotHomed() bool {
	return true
}

// AxesToHomeBeforeProbing requires Z homed as well, since X motion moves
// the Z drive.
func (k *CoreXZKinematics) AxesToHomeBeforeProbing() AxesBitmap {
	return MakeAxesBitmap(XAxis, YAxis, ZAxis)
}
