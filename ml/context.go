// context.go - Context und Tensor Interfaces fuer ML-Operationen
// Dieses Modul definiert die Schnittstellen, gegen die Modelle ihren Forward-Pass schreiben.
package ml

// Context represents an execution context for tensor operations.
type Context interface {
	// Input registriert einen benannten Modell-Eingang
	Input(name string, s []float32, shape ...int) Tensor

	// Forward markiert Tensoren als Ausgaben des Graphen
	Forward(...Tensor) Context
}

// Tensor represents a multi-dimensional array with various operations.
// Alle Tensoren liegen im NCHW-Layout vor.
type Tensor interface {
	Dim(n int) int
	Shape() []int
	Floats() []float32

	Add(ctx Context, t2 Tensor) Tensor
	Scale(ctx Context, s float64) Tensor

	// Conv2D faltet mit einem [O, C/groups, kH, kW] Gewicht; bias darf nil sein
	Conv2D(ctx Context, weight, bias *Parameter, p Conv2DParams) Tensor
	BatchNorm(ctx Context, weight, bias, mean, variance *Parameter, eps float32) Tensor
	Linear(ctx Context, weight, bias *Parameter) Tensor

	RELU(ctx Context) Tensor
	Clamp(ctx Context, min, max float32) Tensor
	Softmax(ctx Context) Tensor

	// Dropout ist nur im Trainingsmodus Teil des Graphen
	Dropout(ctx Context, p float32) Tensor

	GlobalAvgPool2D(ctx Context) Tensor
	Reshape(ctx Context, shape ...int) Tensor
}
