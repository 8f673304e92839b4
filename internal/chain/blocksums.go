package chain

// BlockSums is the running Pedersen-sum accumulator for a block (spec §3):
// the running sum of every live output commitment and the running sum of
// every kernel excess ever accepted, up to and including this block. Storing
// both lets the pipeline verify the kernel-sum identity (I4) incrementally,
// in O(1), instead of re-summing the whole chain on every block.
type BlockSums struct {
	UTXOSum   [33]byte // Pedersen sum of all currently-live outputs
	KernelSum [33]byte // Pedersen sum of all kernel excesses ever accepted
}
