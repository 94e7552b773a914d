// vulkan_backend.go - Vulkan consumer for translated shader modules

package main

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
)

// ShaderFingerprint identifies a translation input; translated modules
// are pure functions of their inputs and cache under it.
type ShaderFingerprint [32]byte

// FingerprintShader hashes a shader binary with its stage tag.
func FingerprintShader(stage ShaderStage, binaryData []byte) ShaderFingerprint {
	h := sha256.New()
	var tag [4]byte
	binary.LittleEndian.PutUint32(tag[:], uint32(stage))
	h.Write(tag[:])
	h.Write(binaryData)
	var out ShaderFingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// VulkanBackend owns a headless Vulkan device used to compile the
// translated SPIR-V into shader modules. Bring-up failure leaves the
// backend unavailable without taking the engine down; translation and
// the reference evaluator keep working without it.
type VulkanBackend struct {
	mutex sync.Mutex

	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	graphicsQueue  vk.Queue
	queueFamily    uint32

	shaderModules map[ShaderFingerprint]vk.ShaderModule

	initialized bool
}

var vulkanLoaderOnce sync.Once
var vulkanLoaderErr error

func NewVulkanBackend() *VulkanBackend {
	return &VulkanBackend{
		shaderModules: make(map[ShaderFingerprint]vk.ShaderModule),
	}
}

// Init brings up the instance and a logical device with one graphics
// queue.
func (vb *VulkanBackend) Init() error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	vulkanLoaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			vulkanLoaderErr = fmt.Errorf("failed to load Vulkan library: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			vulkanLoaderErr = fmt.Errorf("failed to initialize Vulkan loader: %w", err)
		}
	})
	if vulkanLoaderErr != nil {
		return vulkanLoaderErr
	}

	if err := vb.createInstance(); err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	if err := vb.selectPhysicalDevice(); err != nil {
		vb.destroyInstance()
		return fmt.Errorf("failed to select physical device: %w", err)
	}
	if err := vb.createDevice(); err != nil {
		vb.destroyInstance()
		return fmt.Errorf("failed to create device: %w", err)
	}

	vb.initialized = true
	return nil
}

func (vb *VulkanBackend) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString("EspressoEngine GPU"),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("Latte HLE"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %d", res)
	}

	vb.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (vb *VulkanBackend) selectPhysicalDevice() error {
	var deviceCount uint32
	vk.EnumeratePhysicalDevices(vb.instance, &deviceCount, nil)
	if deviceCount == 0 {
		return fmt.Errorf("no Vulkan-capable GPUs found")
	}

	devices := make([]vk.PhysicalDevice, deviceCount)
	vk.EnumeratePhysicalDevices(vb.instance, &deviceCount, devices)

	for _, device := range devices {
		var queueFamilyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
		queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

		for i, qf := range queueFamilies {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				vb.physicalDevice = device
				vb.queueFamily = uint32(i)
				return nil
			}
		}
	}

	return fmt.Errorf("no suitable GPU with graphics queue found")
}

func (vb *VulkanBackend) createDevice() error {
	queuePriority := float32(1.0)
	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: vb.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{queuePriority},
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	var device vk.Device
	if res := vk.CreateDevice(vb.physicalDevice, &deviceCreateInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %d", res)
	}
	vb.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, vb.queueFamily, 0, &queue)
	vb.graphicsQueue = queue
	return nil
}

// CompileModule lowers a translated IR module to SPIR-V and wraps it
// in a VkShaderModule, cached by fingerprint.
func (vb *VulkanBackend) CompileModule(fingerprint ShaderFingerprint, module *IRModule) (vk.ShaderModule, error) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	if !vb.initialized {
		return vk.NullShaderModule, fmt.Errorf("vulkan backend is not initialized")
	}
	if cached, ok := vb.shaderModules[fingerprint]; ok {
		return cached, nil
	}

	words, err := DumpSPIRV(module)
	if err != nil {
		return vk.NullShaderModule, err
	}

	code := make([]byte, len(words)*4)
	for i, word := range words {
		binary.LittleEndian.PutUint32(code[i*4:], word)
	}

	shaderModule, err := vb.createShaderModule(code)
	if err != nil {
		return vk.NullShaderModule, err
	}
	vb.shaderModules[fingerprint] = shaderModule
	return shaderModule, nil
}

// createShaderModule creates a shader module from SPIR-V bytecode.
func (vb *VulkanBackend) createShaderModule(code []byte) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}

	var shaderModule vk.ShaderModule
	if res := vk.CreateShaderModule(vb.device, &createInfo, nil, &shaderModule); res != vk.Success {
		return vk.NullShaderModule, fmt.Errorf("vkCreateShaderModule failed: %d", res)
	}
	return shaderModule, nil
}

// Destroy releases the cached modules and the device objects.
func (vb *VulkanBackend) Destroy() {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	if !vb.initialized {
		return
	}
	for _, module := range vb.shaderModules {
		if module != vk.NullShaderModule {
			vk.DestroyShaderModule(vb.device, module, nil)
		}
	}
	vb.shaderModules = make(map[ShaderFingerprint]vk.ShaderModule)

	vb.destroyDevice()
	vb.destroyInstance()
	vb.initialized = false
}

func (vb *VulkanBackend) destroyDevice() {
	if vb.device != nil {
		vk.DestroyDevice(vb.device, nil)
		vb.device = nil
	}
}

func (vb *VulkanBackend) destroyInstance() {
	if vb.instance != nil {
		vk.DestroyInstance(vb.instance, nil)
		vb.instance = nil
	}
}

func safeString(s string) string {
	return s + "\x00"
}

func sliceUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}
